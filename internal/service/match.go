// internal/service/match.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saltline/broadside/internal/cache"
)

// Status is one player's per-match flags, stored JSON-encoded as a hash
// field under the game id.
type Status struct {
	TempDisconnect bool `json:"temp_disconnect"`
	FullDisconnect bool `json:"full_disconnect"`
	Restart        bool `json:"restart"`
}

// Phase describes the disconnect state machine: connected → temp → full.
// temp→full is the only upgrade, temp→connected is reconnect.
type Phase int

const (
	Connected Phase = iota
	TempGone
	FullGone
)

func (s Status) Phase() Phase {
	switch {
	case s.FullDisconnect:
		return FullGone
	case s.TempDisconnect:
		return TempGone
	default:
		return Connected
	}
}

// Matches manages per-player match status hashes.
type Matches struct {
	store cache.Store
}

func NewMatches(store cache.Store) *Matches {
	return &Matches{store: store}
}

// Init writes a fresh zero status for player and returns it.
func (m *Matches) Init(ctx context.Context, gameID, player string) (Status, error) {
	var st Status
	if err := m.write(ctx, gameID, player, st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Get returns the player's status, or ok=false if none was initialized.
func (m *Matches) Get(ctx context.Context, gameID, player string) (Status, bool, error) {
	raw, ok, err := m.store.HashGet(ctx, gameID, player)
	if err != nil || !ok {
		return Status{}, false, err
	}
	var st Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Status{}, false, fmt.Errorf("decode status for %s in %s: %w", player, gameID, err)
	}
	return st, true, nil
}

// Update mutates the player's status read-modify-write. The hash is only
// ever touched by that player's own session and background tasks, so the
// non-atomic cycle is safe.
func (m *Matches) Update(ctx context.Context, gameID, player string, mutate func(*Status)) error {
	st, ok, err := m.Get(ctx, gameID, player)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no status for %s in %s", player, gameID)
	}
	mutate(&st)
	return m.write(ctx, gameID, player, st)
}

func (m *Matches) SetTemp(ctx context.Context, gameID, player string, v bool) error {
	return m.Update(ctx, gameID, player, func(st *Status) { st.TempDisconnect = v })
}

func (m *Matches) SetFull(ctx context.Context, gameID, player string, v bool) error {
	return m.Update(ctx, gameID, player, func(st *Status) { st.FullDisconnect = v })
}

func (m *Matches) SetRestart(ctx context.Context, gameID, player string, v bool) error {
	return m.Update(ctx, gameID, player, func(st *Status) { st.Restart = v })
}

// Statuses returns every player's decoded status.
func (m *Matches) Statuses(ctx context.Context, gameID string) (map[string]Status, error) {
	raw, err := m.store.HashGetAll(ctx, gameID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Status, len(raw))
	for player, data := range raw {
		var st Status
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("decode status for %s in %s: %w", player, gameID, err)
		}
		out[player] = st
	}
	return out, nil
}

// AllFull reports whether every tracked player has fully disconnected.
func (m *Matches) AllFull(ctx context.Context, gameID string) (bool, error) {
	return m.all(ctx, gameID, func(st Status) bool { return st.FullDisconnect })
}

// AllRestart reports whether every tracked player has voted for a rematch.
func (m *Matches) AllRestart(ctx context.Context, gameID string) (bool, error) {
	return m.all(ctx, gameID, func(st Status) bool { return st.Restart })
}

// Delete drops the whole status hash.
func (m *Matches) Delete(ctx context.Context, gameID string) error {
	return m.store.Delete(ctx, gameID)
}

// Reset replaces the status hash with fresh zero statuses for players.
// Called when a rematch recreates the game so stale restart flags cannot
// retrigger instantly.
func (m *Matches) Reset(ctx context.Context, gameID string, players ...string) error {
	if err := m.Delete(ctx, gameID); err != nil {
		return err
	}
	for _, player := range players {
		if _, err := m.Init(ctx, gameID, player); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matches) all(ctx context.Context, gameID string, pred func(Status) bool) (bool, error) {
	statuses, err := m.Statuses(ctx, gameID)
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 {
		return false, nil
	}
	for _, st := range statuses {
		if !pred(st) {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matches) write(ctx context.Context, gameID, player string, st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return m.store.HashSet(ctx, gameID, player, string(data))
}
