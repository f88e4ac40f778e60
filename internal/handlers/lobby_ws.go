// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/saltline/broadside/internal/channel"
	"github.com/saltline/broadside/internal/engine"
	"github.com/saltline/broadside/internal/service"
)

const lobbyUsersGroup = "lobby_users"

// lobbyAction is the envelope for client messages on the lobby socket.
type lobbyAction struct {
	Action   string `json:"action"`
	To       string `json:"to,omitempty"`
	From     string `json:"from,omitempty"`
	Status   string `json:"status,omitempty"`
	ChatWith string `json:"chatWith,omitempty"`
	Msg      string `json:"msg,omitempty"`
}

// lobbySession is one user's lobby connection: a channel-layer subscriber
// whose inbox is drained by an event pump that renders events into client
// messages.
type lobbySession struct {
	id       uuid.UUID
	username string
	srv      *Server
	conn     *websocket.Conn
	log      *logrus.Entry
	inbox    chan channel.Event
	cancel   context.CancelFunc
}

func (s *lobbySession) SessionID() uuid.UUID { return s.id }

// Deliver pushes an event onto the session inbox without blocking; a full
// inbox drops the event (the broker applies real backpressure upstream).
func (s *lobbySession) Deliver(ev channel.Event) {
	select {
	case s.inbox <- ev:
	default:
		s.log.Warnf("lobby inbox full, dropped event %q", ev.Kind)
	}
}

// LobbyWSHandler serves one client's lobby connection.
func LobbyWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("lobby websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		username, err := authenticateRequest(r)
		if err != nil {
			// Unauthenticated opens are closed without joining anything.
			c.Close(websocket.StatusPolicyViolation, "")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &lobbySession{
			id:       uuid.New(),
			username: username,
			srv:      srv,
			conn:     c,
			log:      logger.WithFields(logrus.Fields{"user": username, "remote": r.RemoteAddr}),
			inbox:    make(chan channel.Event, 16),
			cancel:   cancel,
		}

		if err := s.open(ctx); err != nil {
			s.log.Warnf("lobby open failed: %v", err)
			c.Close(websocket.StatusInternalError, "backend unavailable")
			return
		}
		s.log.Info("lobby session opened")

		go s.eventPump(ctx)
		s.readLoop(ctx)

		s.close()
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// open registers the session: groups, roster, presence, initial pushes.
func (s *lobbySession) open(ctx context.Context) error {
	if err := s.srv.Channels.GroupAdd(ctx, lobbyUsersGroup, s); err != nil {
		return err
	}
	if err := s.srv.Channels.GroupAdd(ctx, userGroup(s.username), s); err != nil {
		return err
	}

	// Route a returning player straight back to their live match, unless
	// they fully left it.
	if gameID, ok := s.srv.Engine.PlayerGame(s.username); ok {
		st, found, err := s.srv.Matches.Get(ctx, gameID, s.username)
		if err != nil {
			return err
		}
		if !found || !st.FullDisconnect {
			s.Deliver(channel.Event{Kind: channel.KindInGame, GameID: gameID})
		}
	}

	if err := s.srv.Presence.AddToLobby(ctx, s.username); err != nil {
		return err
	}
	if err := s.srv.Presence.Refresh(ctx, s.username); err != nil {
		return err
	}
	if err := s.srv.Channels.GroupSend(ctx, lobbyUsersGroup, channel.Event{Kind: channel.KindUserList}); err != nil {
		return err
	}
	s.Deliver(channel.Event{Kind: channel.KindInviteState})
	return nil
}

// close unwinds what open set up and schedules the lazy chat cleanup.
func (s *lobbySession) close() {
	ctx := context.Background()
	if err := s.srv.Channels.DiscardAll(ctx, s); err != nil {
		s.log.Warnf("lobby group discard: %v", err)
	}
	if err := s.srv.Presence.RemoveFromLobby(ctx, s.username); err != nil {
		s.log.Warnf("lobby roster remove: %v", err)
	}
	if err := s.srv.Channels.GroupSend(ctx, lobbyUsersGroup, channel.Event{Kind: channel.KindUserList}); err != nil {
		s.log.Warnf("lobby user list broadcast: %v", err)
	}
	go cleanupLobbyChats(s.srv, s.username)
	s.log.Info("lobby session closed")
}

// eventPump renders channel-layer events into client messages.
func (s *lobbySession) eventPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.inbox:
			if err := s.handleEvent(ctx, ev); err != nil {
				s.log.Warnf("lobby event %q failed: %v", ev.Kind, err)
				s.cancel()
				return
			}
		}
	}
}

func (s *lobbySession) handleEvent(ctx context.Context, ev channel.Event) error {
	switch ev.Kind {
	case channel.KindUserList:
		users, err := s.srv.Presence.LobbyUsers(ctx)
		if err != nil {
			return err
		}
		return writeJSON(ctx, s.conn, map[string]any{
			"type":  "user_list",
			"users": users,
			"self":  s.username,
		})
	case channel.KindInviteState:
		state, err := s.srv.Invites.State(ctx, s.username)
		if err != nil {
			return err
		}
		return writeJSON(ctx, s.conn, map[string]any{
			"type":     "invite_state",
			"incoming": state.Incoming,
			"outgoing": state.Outgoing,
		})
	case channel.KindInviteAccepted:
		return writeJSON(ctx, s.conn, map[string]any{
			"type": "invite_accepted",
			"from": ev.From,
		})
	case channel.KindInviteDeclined:
		return writeJSON(ctx, s.conn, map[string]any{
			"type": "invite_declined",
			"from": ev.From,
		})
	case channel.KindChatNotify:
		return writeJSON(ctx, s.conn, map[string]any{
			"type": "chat_notify",
			"from": ev.From,
		})
	case channel.KindChatHistory:
		history, err := s.srv.Chats.History(ctx, ev.ChatID)
		if err != nil {
			return err
		}
		return writeJSON(ctx, s.conn, map[string]any{
			"type":    "chat_history",
			"history": history,
		})
	case channel.KindInGame:
		return writeJSON(ctx, s.conn, map[string]any{
			"type":    "in_game",
			"game_id": ev.GameID,
		})
	default:
		// Kinds this session does not speak are dropped.
		return nil
	}
}

// readLoop consumes client actions until the socket closes.
func (s *lobbySession) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				s.log.Warnf("lobby read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var action lobbyAction
		if err := json.Unmarshal(data, &action); err != nil {
			writeWsError(ctx, s.conn, "Invalid JSON format")
			continue
		}
		if action.Action == "" {
			writeWsError(ctx, s.conn, "Missing action.")
			continue
		}

		if err := s.handleAction(ctx, action); err != nil {
			// Keyed store or channel layer failure: close and let the
			// client reconnect.
			s.log.Warnf("lobby action %q failed: %v", action.Action, err)
			return
		}
	}
}

func (s *lobbySession) handleAction(ctx context.Context, action lobbyAction) error {
	// Every user action keeps the presence marker alive.
	if err := s.srv.Presence.Refresh(ctx, s.username); err != nil {
		return err
	}

	switch action.Action {
	case "invite":
		return s.actionInvite(ctx, action)
	case "invite_response":
		return s.actionInviteResponse(ctx, action)
	case "invite_cancel":
		return s.actionInviteCancel(ctx, action)
	case "send_msg":
		return s.actionSendMsg(ctx, action)
	case "join_chat":
		return s.actionJoinChat(ctx, action)
	case "ping":
		return nil
	default:
		writeWsError(ctx, s.conn, fmt.Sprintf("Unknown action: %s", action.Action))
		return nil
	}
}

func (s *lobbySession) actionInvite(ctx context.Context, action lobbyAction) error {
	if action.To == "" {
		writeWsError(ctx, s.conn, "Missing 'to' in invite.")
		return nil
	}
	if err := s.srv.Invites.Add(ctx, s.username, action.To); err != nil {
		return err
	}
	go watchInvite(s.srv, s.username, action.To)

	stateEv := channel.Event{Kind: channel.KindInviteState}
	if err := s.srv.Channels.GroupSend(ctx, userGroup(s.username), stateEv); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, userGroup(action.To), stateEv)
}

func (s *lobbySession) actionInviteResponse(ctx context.Context, action lobbyAction) error {
	if action.From == "" || action.Status == "" {
		writeWsError(ctx, s.conn, "Missing data in invite_response.")
		return nil
	}
	if err := s.srv.Invites.Remove(ctx, action.From, s.username); err != nil {
		return err
	}

	switch action.Status {
	case "accepted":
		if err := s.srv.Channels.GroupSend(ctx, userGroup(action.From), channel.Event{
			Kind: channel.KindInviteAccepted,
			From: s.username,
		}); err != nil {
			return err
		}

		gameID := engine.GameID(action.From, s.username)
		s.srv.Engine.CreateGame(gameID, action.From, s.username)
		// A stale status hash from a previous match under this id would
		// leak old restart/disconnect flags into the fresh game.
		if err := s.srv.Matches.Delete(ctx, gameID); err != nil {
			return err
		}
		s.Deliver(channel.Event{Kind: channel.KindInGame, GameID: gameID})
	case "declined":
		if err := s.srv.Channels.GroupSend(ctx, userGroup(action.From), channel.Event{
			Kind: channel.KindInviteDeclined,
			From: s.username,
		}); err != nil {
			return err
		}
		stateEv := channel.Event{Kind: channel.KindInviteState}
		if err := s.srv.Channels.GroupSend(ctx, userGroup(s.username), stateEv); err != nil {
			return err
		}
		if err := s.srv.Channels.GroupSend(ctx, userGroup(action.From), stateEv); err != nil {
			return err
		}
	default:
		writeWsError(ctx, s.conn, fmt.Sprintf("Unknown invite status: %s", action.Status))
	}
	return nil
}

func (s *lobbySession) actionInviteCancel(ctx context.Context, action lobbyAction) error {
	if action.To == "" {
		writeWsError(ctx, s.conn, "Missing 'to' in invite_cancel.")
		return nil
	}
	if err := s.srv.Invites.Remove(ctx, s.username, action.To); err != nil {
		return err
	}
	stateEv := channel.Event{Kind: channel.KindInviteState}
	if err := s.srv.Channels.GroupSend(ctx, userGroup(s.username), stateEv); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, userGroup(action.To), stateEv)
}

func (s *lobbySession) actionSendMsg(ctx context.Context, action lobbyAction) error {
	if action.ChatWith == "" || action.Msg == "" {
		writeWsError(ctx, s.conn, "Missing chat data.")
		return nil
	}
	chatID := service.LobbyChatID(s.username, action.ChatWith)

	if err := s.srv.Chats.Track(ctx, s.username, chatID); err != nil {
		return err
	}
	if err := s.srv.Chats.Track(ctx, action.ChatWith, chatID); err != nil {
		return err
	}
	if err := s.srv.Chats.Push(ctx, chatID, service.LobbyMessage{
		From: s.username,
		Msg:  action.Msg,
	}); err != nil {
		return err
	}
	if err := s.srv.Channels.GroupSend(ctx, chatID, channel.Event{
		Kind:   channel.KindChatHistory,
		ChatID: chatID,
	}); err != nil {
		return err
	}
	return s.srv.Channels.GroupSend(ctx, userGroup(action.ChatWith), channel.Event{
		Kind: channel.KindChatNotify,
		From: s.username,
	})
}

func (s *lobbySession) actionJoinChat(ctx context.Context, action lobbyAction) error {
	if action.ChatWith == "" {
		writeWsError(ctx, s.conn, "Missing 'chatWith'.")
		return nil
	}
	chatID := service.LobbyChatID(s.username, action.ChatWith)

	if err := s.srv.Channels.GroupAdd(ctx, chatID, s); err != nil {
		return err
	}
	// Broadcast to the chat group so the joiner (now a member) receives the
	// history too.
	return s.srv.Channels.GroupSend(ctx, chatID, channel.Event{
		Kind:   channel.KindChatHistory,
		ChatID: chatID,
	})
}
