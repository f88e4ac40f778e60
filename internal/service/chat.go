// internal/service/chat.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saltline/broadside/internal/cache"
)

// Chat message access levels.
const (
	AccessPublic  = "public"
	AccessPrivate = "private"
)

// Game chat message kinds.
const (
	MsgSystem = "system"
	MsgUser   = "user"
)

// GameMessage is one entry in a game chat.
type GameMessage struct {
	From    string `json:"from"`
	MsgType string `json:"msg_type"`
	Msg     string `json:"msg"`
	Access  string `json:"access"`
}

// LobbyMessage is one entry in a lobby 1:1 chat.
type LobbyMessage struct {
	From string `json:"from"`
	Msg  string `json:"msg"`
}

// Chats stores ordered message lists keyed by chat id, plus the per-user
// index of lobby chats used for lazy cleanup.
type Chats struct {
	store cache.Store
}

func NewChats(store cache.Store) *Chats {
	return &Chats{store: store}
}

// LobbyChatID is the canonical id for a 1:1 lobby chat.
func LobbyChatID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// GameChatID is the chat list key for a match.
func GameChatID(gameID string) string { return "gamechat:" + gameID }

func lobbyChatsKey(username string) string { return "lobby_chats:" + username }

// Push appends a JSON-encoded message to the chat.
func (c *Chats) Push(ctx context.Context, chatID string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	return c.store.ListPush(ctx, chatID, string(data))
}

// History returns the full chat in append order, each entry as raw JSON.
func (c *Chats) History(ctx context.Context, chatID string) ([]json.RawMessage, error) {
	items, err := c.store.ListRange(ctx, chatID)
	if err != nil {
		return nil, err
	}
	history := make([]json.RawMessage, len(items))
	for i, item := range items {
		history[i] = json.RawMessage(item)
	}
	return history, nil
}

// Delete drops the whole chat list.
func (c *Chats) Delete(ctx context.Context, chatID string) error {
	return c.store.Delete(ctx, chatID)
}

// Track records that username has participated in the lobby chat.
func (c *Chats) Track(ctx context.Context, username, chatID string) error {
	return c.store.AddToSet(ctx, lobbyChatsKey(username), chatID, 0)
}

// TrackedChats lists the lobby chats username has participated in.
func (c *Chats) TrackedChats(ctx context.Context, username string) ([]string, error) {
	return c.store.Members(ctx, lobbyChatsKey(username))
}

// Untrack removes chatID from username's index, deleting the index key once
// it empties.
func (c *Chats) Untrack(ctx context.Context, username, chatID string) error {
	if err := c.store.RemoveFromSet(ctx, lobbyChatsKey(username), chatID); err != nil {
		return err
	}
	rest, err := c.store.Members(ctx, lobbyChatsKey(username))
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return c.store.Delete(ctx, lobbyChatsKey(username))
	}
	return nil
}
