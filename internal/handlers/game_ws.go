// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/saltline/broadside/internal/channel"
	"github.com/saltline/broadside/internal/engine"
	"github.com/saltline/broadside/internal/service"
)

// gracePeriod is how long a player may stay away after a socket close
// before the disconnect is treated as permanent.
const gracePeriod = 10 * time.Second

// gameAction is the envelope for client messages on the game socket.
// Coordinates are pointers so a missing field is distinguishable from 0.
type gameAction struct {
	Action      string `json:"action"`
	X           *int   `json:"x,omitempty"`
	Y           *int   `json:"y,omitempty"`
	Length      *int   `json:"length,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Msg         string `json:"msg,omitempty"`
	Access      string `json:"access,omitempty"`
}

// gameSession is one player's connection to their match.
type gameSession struct {
	id       uuid.UUID
	username string
	gameID   string
	chatID   string
	srv      *Server
	conn     *websocket.Conn
	log      *logrus.Entry
	inbox    chan channel.Event
	cancel   context.CancelFunc
}

func (s *gameSession) SessionID() uuid.UUID { return s.id }

func (s *gameSession) Deliver(ev channel.Event) {
	select {
	case s.inbox <- ev:
	default:
		s.log.Warnf("game inbox full, dropped event %q", ev.Kind)
	}
}

// GameWSHandler serves one player's in-match connection at
// /ws/game/{game_id}/.
func GameWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ws/game/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing game_id", http.StatusBadRequest)
			return
		}
		gameID := pathParts[0]

		// Accept before authorization so the 4000 close code is
		// deliverable to the client.
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("game websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		username, err := authenticateRequest(r)
		if err != nil {
			c.Close(websocket.StatusPolicyViolation, "")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &gameSession{
			id:       uuid.New(),
			username: username,
			gameID:   gameID,
			chatID:   service.GameChatID(gameID),
			srv:      srv,
			conn:     c,
			log: logger.WithFields(logrus.Fields{
				"user": username,
				"game": gameID,
			}),
			inbox:  make(chan channel.Event, 16),
			cancel: cancel,
		}

		st, found, err := srv.Matches.Get(ctx, gameID, username)
		if err != nil {
			s.log.Warnf("game status lookup failed: %v", err)
			c.Close(websocket.StatusInternalError, "backend unavailable")
			return
		}
		if !srv.Engine.Exists(gameID) || !srv.Engine.HasPlayer(gameID, username) ||
			(found && st.FullDisconnect) {
			c.Close(ForbiddenGameError, "not a participant of this game")
			return
		}

		if err := s.open(ctx, found); err != nil {
			s.log.Warnf("game open failed: %v", err)
			c.Close(websocket.StatusInternalError, "backend unavailable")
			return
		}
		s.log.Info("game session opened")

		go s.eventPump(ctx)
		s.readLoop(ctx)

		s.close()
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// open joins the match group and clears the temp-disconnect flag, so a
// returning player's pending grace task sees the reconnect and stands down.
func (s *gameSession) open(ctx context.Context, statusFound bool) error {
	if !statusFound {
		if _, err := s.srv.Matches.Init(ctx, s.gameID, s.username); err != nil {
			return err
		}
	}
	if err := s.srv.Channels.GroupAdd(ctx, s.gameID, s); err != nil {
		return err
	}
	if err := s.srv.Matches.SetTemp(ctx, s.gameID, s.username, false); err != nil {
		return err
	}
	if err := s.srv.Presence.Refresh(ctx, s.username); err != nil {
		return err
	}
	if err := s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindGameUpdate}); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{
		Kind:   channel.KindChatHistory,
		ChatID: s.chatID,
	})
}

// close marks the player temporarily gone and hands off to the grace task.
func (s *gameSession) close() {
	ctx := context.Background()
	if err := s.srv.Channels.DiscardAll(ctx, s); err != nil {
		s.log.Warnf("game group discard: %v", err)
	}
	if err := s.srv.Matches.SetTemp(ctx, s.gameID, s.username, true); err != nil {
		s.log.Warnf("set temp disconnect: %v", err)
		return
	}
	go s.disconnectGrace()
	s.log.Info("game session closed")
}

// disconnectGrace decides, after the grace period, whether the player is
// really gone. It survives the session and no-ops if the player came back
// or the game disappeared.
func (s *gameSession) disconnectGrace() {
	ctx := context.Background()

	st, found, err := s.srv.Matches.Get(ctx, s.gameID, s.username)
	if err != nil || !found {
		return
	}
	if !st.FullDisconnect {
		time.Sleep(gracePeriod)

		st, found, err = s.srv.Matches.Get(ctx, s.gameID, s.username)
		if err != nil || !found {
			return
		}
		switch st.Phase() {
		case service.FullGone:
			// leave_game or a parallel path already upgraded us.
		case service.TempGone:
			if err := s.srv.Matches.SetFull(ctx, s.gameID, s.username, true); err != nil {
				s.log.Warnf("set full disconnect: %v", err)
				return
			}
		default:
			// Reconnected within the grace period.
			return
		}
	}
	s.finishFullDisconnect(ctx)
}

// finishFullDisconnect tears the match down if everyone left, otherwise
// tells the remaining player their opponent is gone.
func (s *gameSession) finishFullDisconnect(ctx context.Context) {
	go cleanupLobbyChats(s.srv, s.username)

	allGone, err := s.srv.Matches.AllFull(ctx, s.gameID)
	if err != nil {
		s.log.Warnf("full disconnect check: %v", err)
		return
	}
	if allGone {
		if err := s.srv.Chats.Delete(ctx, s.chatID); err != nil {
			s.log.Warnf("delete game chat: %v", err)
		}
		if err := s.srv.Matches.Delete(ctx, s.gameID); err != nil {
			s.log.Warnf("delete game status: %v", err)
		}
		s.srv.Engine.EndGame(s.gameID)
		s.log.Info("game torn down, both players gone")
		return
	}

	if err := s.pushMessage(ctx, service.MsgSystem,
		strings.ToUpper(s.username)+" HAS LEFT THE GAME", service.AccessPublic); err != nil {
		s.log.Warnf("leave message: %v", err)
	}
	if err := s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindEnemyLeft}); err != nil {
		s.log.Warnf("enemy_left broadcast: %v", err)
	}
	if err := s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindGameUpdate}); err != nil {
		s.log.Warnf("game update broadcast: %v", err)
	}
}

// eventPump renders match events into client messages.
func (s *gameSession) eventPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.inbox:
			if err := s.handleEvent(ctx, ev); err != nil {
				s.log.Warnf("game event %q failed: %v", ev.Kind, err)
				s.cancel()
				return
			}
		}
	}
}

func (s *gameSession) handleEvent(ctx context.Context, ev channel.Event) error {
	switch ev.Kind {
	case channel.KindGameUpdate:
		return s.sendGameState(ctx)
	case channel.KindChatHistory:
		history, err := s.srv.Chats.History(ctx, s.chatID)
		if err != nil {
			return err
		}
		return writeJSON(ctx, s.conn, map[string]any{
			"type":    "chat_history",
			"history": history,
		})
	case channel.KindEnemyLeft:
		if ev.From == s.username {
			return nil
		}
		return writeJSON(ctx, s.conn, map[string]any{"type": "enemy_left"})
	case channel.KindNewGame:
		return writeJSON(ctx, s.conn, map[string]any{"type": "new_game"})
	default:
		return nil
	}
}

// sendGameState pushes the redacted per-player projection plus everyone's
// disconnect flags.
func (s *gameSession) sendGameState(ctx context.Context) error {
	state, err := s.srv.Engine.State(s.gameID, s.username)
	if err != nil {
		// The game may have been torn down between send and delivery.
		if errors.Is(err, engine.ErrGameNotFound) {
			return nil
		}
		return err
	}

	statuses, err := s.srv.Matches.Statuses(ctx, s.gameID)
	if err != nil {
		return err
	}
	playersDisconnect := make(map[string]bool, len(statuses))
	for player, st := range statuses {
		playersDisconnect[player] = st.FullDisconnect
	}

	return writeJSON(ctx, s.conn, map[string]any{
		"type":               "game_state",
		"state":              state,
		"players_disconnect": playersDisconnect,
	})
}

// readLoop consumes client actions until the socket closes.
func (s *gameSession) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				s.log.Warnf("game read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var action gameAction
		if err := json.Unmarshal(data, &action); err != nil {
			writeWsError(ctx, s.conn, "Invalid JSON format")
			continue
		}
		if action.Action == "" {
			continue
		}

		if err := s.handleAction(ctx, action); err != nil {
			s.log.Warnf("game action %q failed: %v", action.Action, err)
			return
		}
	}
}

func (s *gameSession) handleAction(ctx context.Context, action gameAction) error {
	if action.Action == "leave_game" {
		// The close handler observes the flag and skips the grace wait.
		return s.srv.Matches.SetFull(ctx, s.gameID, s.username, true)
	}

	if err := s.srv.Presence.Refresh(ctx, s.username); err != nil {
		return err
	}

	switch action.Action {
	case "place_ship":
		if action.X == nil || action.Y == nil || action.Length == nil || action.Orientation == "" {
			writeWsError(ctx, s.conn, "Missing placement data.")
			return nil
		}
		result, err := s.srv.Engine.PlaceShip(s.gameID, s.username,
			*action.X, *action.Y, *action.Length, engine.Orientation(action.Orientation))
		return s.reportEngineResult(ctx, result, service.AccessPrivate, err)
	case "remove_ship":
		if action.X == nil || action.Y == nil {
			writeWsError(ctx, s.conn, "Missing ship position.")
			return nil
		}
		result, err := s.srv.Engine.RemoveShip(s.gameID, s.username, *action.X, *action.Y)
		return s.reportEngineResult(ctx, result, service.AccessPrivate, err)
	case "set_ready":
		result, err := s.srv.Engine.SetReady(s.gameID, s.username)
		return s.reportEngineResult(ctx, result, service.AccessPublic, err)
	case "make_move":
		if action.X == nil || action.Y == nil {
			writeWsError(ctx, s.conn, "Missing move coordinates.")
			return nil
		}
		move, err := s.srv.Engine.MakeMove(s.gameID, s.username, *action.X, *action.Y)
		return s.reportEngineResult(ctx, move.Message, service.AccessPublic, err)
	case "restart_game":
		return s.actionRestartGame(ctx)
	case "send_msg":
		if action.Msg == "" {
			writeWsError(ctx, s.conn, "Missing chat data.")
			return nil
		}
		msgType := action.Sender
		if msgType == "" {
			msgType = service.MsgUser
		}
		access := action.Access
		if access == "" {
			access = service.AccessPublic
		}
		return s.pushMessage(ctx, msgType, action.Msg, access)
	case "ping":
		return nil
	default:
		return nil
	}
}

// actionRestartGame records a rematch vote; the second vote recreates the
// game under the same id with fresh boards and status flags.
func (s *gameSession) actionRestartGame(ctx context.Context) error {
	players, err := s.srv.Engine.Players(s.gameID)
	if err != nil {
		return nil
	}

	if err := s.srv.Matches.SetRestart(ctx, s.gameID, s.username, true); err != nil {
		return err
	}
	if err := s.pushMessage(ctx, service.MsgSystem,
		strings.ToUpper(s.username)+" HAS VOTED FOR A REMATCH", service.AccessPublic); err != nil {
		return err
	}

	all, err := s.srv.Matches.AllRestart(ctx, s.gameID)
	if err != nil || !all {
		return err
	}

	if err := s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindNewGame}); err != nil {
		return err
	}
	s.srv.Engine.CreateGame(s.gameID, players[0], players[1])
	// Fresh status hash so the old round's flags cannot retrigger a
	// restart or mark anyone disconnected.
	if err := s.srv.Matches.Reset(ctx, s.gameID, players[0], players[1]); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindGameUpdate})
}

// reportEngineResult turns an engine outcome into chat traffic: rule
// violations go back to the actor as private system lines, successes are
// recorded with the given access and followed by a state broadcast.
func (s *gameSession) reportEngineResult(ctx context.Context, result, access string, err error) error {
	if err != nil {
		var ruleErr *engine.RuleError
		if errors.As(err, &ruleErr) {
			return s.pushMessage(ctx, service.MsgSystem, ruleErr.Error(), service.AccessPrivate)
		}
		if errors.Is(err, engine.ErrGameNotFound) {
			return s.pushMessage(ctx, service.MsgSystem, "GAME NOT FOUND", service.AccessPrivate)
		}
		return err
	}
	if err := s.pushMessage(ctx, service.MsgSystem, result, access); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{Kind: channel.KindGameUpdate})
}

// pushMessage appends to the game chat and broadcasts the refreshed history
// to the match group.
func (s *gameSession) pushMessage(ctx context.Context, msgType, msg, access string) error {
	if err := s.srv.Chats.Push(ctx, s.chatID, service.GameMessage{
		From:    s.username,
		MsgType: msgType,
		Msg:     msg,
		Access:  access,
	}); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, s.gameID, channel.Event{
		Kind:   channel.KindChatHistory,
		ChatID: s.chatID,
	})
}
