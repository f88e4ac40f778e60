// internal/service/presence.go
package service

import (
	"context"
	"time"

	"github.com/saltline/broadside/internal/cache"
)

// OnlineTTL is how long a user counts as online after their last action.
const OnlineTTL = 30 * time.Second

const lobbyUsersKey = "lobby_users"

// Presence tracks who is online (short-lived marker keys) and who currently
// holds a lobby session (roster set).
type Presence struct {
	store cache.Store
}

func NewPresence(store cache.Store) *Presence {
	return &Presence{store: store}
}

func onlineKey(username string) string { return "online_" + username }

// Refresh re-arms the user's online TTL. Called on every user-initiated
// action and on ping.
func (p *Presence) Refresh(ctx context.Context, username string) error {
	return p.store.SetWithTTL(ctx, onlineKey(username), OnlineTTL)
}

// IsOnline reports whether the user's presence marker still exists.
func (p *Presence) IsOnline(ctx context.Context, username string) (bool, error) {
	return p.store.Exists(ctx, onlineKey(username))
}

func (p *Presence) AddToLobby(ctx context.Context, username string) error {
	return p.store.AddToSet(ctx, lobbyUsersKey, username, 0)
}

func (p *Presence) RemoveFromLobby(ctx context.Context, username string) error {
	return p.store.RemoveFromSet(ctx, lobbyUsersKey, username)
}

func (p *Presence) LobbyUsers(ctx context.Context) ([]string, error) {
	return p.store.Members(ctx, lobbyUsersKey)
}
