// internal/service/service_test.go
package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory cache.Store. TTLs are recorded but only expire
// through expire(), so tests control the clock.
type memStore struct {
	mu     sync.Mutex
	keys   map[string]bool
	sets   map[string]map[string]bool
	lists  map[string][]string
	hashes map[string]map[string]string
	ttls   map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		keys:   make(map[string]bool),
		sets:   make(map[string]map[string]bool),
		lists:  make(map[string][]string),
		hashes: make(map[string]map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

// expire simulates the TTL firing for key.
func (s *memStore) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	delete(s.sets, key)
	delete(s.lists, key)
	delete(s.hashes, key)
	delete(s.ttls, key)
}

func (s *memStore) SetWithTTL(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = true
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) AddToSet(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]bool)
	}
	s.sets[key][value] = true
	if ttl > 0 {
		s.ttls[key] = ttl
	}
	return nil
}

func (s *memStore) RemoveFromSet(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, value)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

func (s *memStore) Members(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for v := range s.sets[key] {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) ListPush(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], value)
	return nil
}

func (s *memStore) ListRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lists[key]...), nil
}

func (s *memStore) HashSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[key] == nil {
		s.hashes[key] = make(map[string]string)
	}
	s.hashes[key][field] = value
	return nil
}

func (s *memStore) HashGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *memStore) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *memStore) HashDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hashes[key]; ok {
		delete(h, field)
		if len(h) == 0 {
			delete(s.hashes, key)
		}
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.expire(key)
	return nil
}

func (s *memStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return true, nil
	}
	if _, ok := s.sets[key]; ok {
		return true, nil
	}
	if _, ok := s.lists[key]; ok {
		return true, nil
	}
	_, ok := s.hashes[key]
	return ok, nil
}

func TestPresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	p := NewPresence(store)

	online, err := p.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, p.Refresh(ctx, "alice"))
	online, err = p.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, OnlineTTL, store.ttls["online_alice"])

	store.expire("online_alice")
	online, err = p.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLobbyRoster(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(newMemStore())

	require.NoError(t, p.AddToLobby(ctx, "alice"))
	require.NoError(t, p.AddToLobby(ctx, "bob"))
	require.NoError(t, p.AddToLobby(ctx, "bob")) // idempotent

	users, err := p.LobbyUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	require.NoError(t, p.RemoveFromLobby(ctx, "alice"))
	users, err = p.LobbyUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob"}, users)
}

func TestInviteSymmetry(t *testing.T) {
	ctx := context.Background()
	i := NewInvites(newMemStore())

	require.NoError(t, i.Add(ctx, "alice", "bob"))

	// Both sides see the pair from their own direction.
	st, err := i.State(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, st.Incoming)
	assert.Empty(t, st.Outgoing)

	st, err = i.State(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, st.Incoming)
	assert.Equal(t, []string{"bob"}, st.Outgoing)

	require.NoError(t, i.Remove(ctx, "alice", "bob"))
	st, err = i.State(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, st.Incoming)
	assert.Empty(t, st.Outgoing)
	// Empty state still serializes as arrays, never null.
	assert.NotNil(t, st.Incoming)
	assert.NotNil(t, st.Outgoing)
}

func TestInviteExpired(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	i := NewInvites(store)

	require.NoError(t, i.Add(ctx, "alice", "bob"))
	assert.Equal(t, InviteTTL, store.ttls["invites_incoming:bob"])
	assert.Equal(t, InviteTTL, store.ttls["invites_outgoing:alice"])

	expired, err := i.Expired(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, expired)

	// One side gone is not expiry; the watcher keeps polling.
	store.expire("invites_incoming:bob")
	expired, err = i.Expired(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, expired)

	store.expire("invites_outgoing:alice")
	expired, err = i.Expired(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestChatIDs(t *testing.T) {
	assert.Equal(t, "alice_bob", LobbyChatID("bob", "alice"))
	assert.Equal(t, LobbyChatID("alice", "bob"), LobbyChatID("bob", "alice"))
	assert.Equal(t, "gamechat:game-alice-bob", GameChatID("game-alice-bob"))
}

func TestChatHistoryOrder(t *testing.T) {
	ctx := context.Background()
	c := NewChats(newMemStore())
	chatID := LobbyChatID("alice", "bob")

	require.NoError(t, c.Push(ctx, chatID, LobbyMessage{From: "alice", Msg: "hi"}))
	require.NoError(t, c.Push(ctx, chatID, LobbyMessage{From: "bob", Msg: "hey"}))

	history, err := c.History(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	var first, second LobbyMessage
	require.NoError(t, json.Unmarshal(history[0], &first))
	require.NoError(t, json.Unmarshal(history[1], &second))
	assert.Equal(t, "alice", first.From)
	assert.Equal(t, "hi", first.Msg)
	assert.Equal(t, "bob", second.From)

	require.NoError(t, c.Delete(ctx, chatID))
	history, err = c.History(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGameMessageShape(t *testing.T) {
	ctx := context.Background()
	c := NewChats(newMemStore())
	chatID := GameChatID("game-alice-bob")

	require.NoError(t, c.Push(ctx, chatID, GameMessage{
		From:    "alice",
		MsgType: MsgSystem,
		Msg:     "NOT YOUR TURN",
		Access:  AccessPrivate,
	}))

	history, err := c.History(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	var msg GameMessage
	require.NoError(t, json.Unmarshal(history[0], &msg))
	assert.Equal(t, MsgSystem, msg.MsgType)
	assert.Equal(t, AccessPrivate, msg.Access)
}

func TestChatTracking(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := NewChats(store)

	ab := LobbyChatID("alice", "bob")
	ac := LobbyChatID("alice", "carol")
	require.NoError(t, c.Track(ctx, "alice", ab))
	require.NoError(t, c.Track(ctx, "alice", ac))

	chats, err := c.TrackedChats(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ab, ac}, chats)

	require.NoError(t, c.Untrack(ctx, "alice", ab))
	chats, err = c.TrackedChats(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ac}, chats)

	// Emptying the index removes the key itself.
	require.NoError(t, c.Untrack(ctx, "alice", ac))
	exists, err := store.Exists(ctx, "lobby_chats:alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatusPhase(t *testing.T) {
	assert.Equal(t, Connected, Status{}.Phase())
	assert.Equal(t, TempGone, Status{TempDisconnect: true}.Phase())
	assert.Equal(t, FullGone, Status{FullDisconnect: true}.Phase())
	// full dominates temp
	assert.Equal(t, FullGone, Status{TempDisconnect: true, FullDisconnect: true}.Phase())
}

func TestMatchStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMatches(newMemStore())
	gameID := "game-alice-bob"

	_, found, err := m.Get(ctx, gameID, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	st, err := m.Init(ctx, gameID, "alice")
	require.NoError(t, err)
	assert.Equal(t, Connected, st.Phase())
	_, err = m.Init(ctx, gameID, "bob")
	require.NoError(t, err)

	require.NoError(t, m.SetTemp(ctx, gameID, "alice", true))
	st, found, err = m.Get(ctx, gameID, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, TempGone, st.Phase())

	// Reconnect clears temp without touching the other flags.
	require.NoError(t, m.SetTemp(ctx, gameID, "alice", false))
	st, _, err = m.Get(ctx, gameID, "alice")
	require.NoError(t, err)
	assert.Equal(t, Connected, st.Phase())

	require.NoError(t, m.SetFull(ctx, gameID, "alice", true))
	allFull, err := m.AllFull(ctx, gameID)
	require.NoError(t, err)
	assert.False(t, allFull)

	require.NoError(t, m.SetFull(ctx, gameID, "bob", true))
	allFull, err = m.AllFull(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, allFull)

	require.NoError(t, m.Delete(ctx, gameID))
	_, found, err = m.Get(ctx, gameID, "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMatchUpdateUnknownPlayer(t *testing.T) {
	ctx := context.Background()
	m := NewMatches(newMemStore())
	err := m.SetTemp(ctx, "game-alice-bob", "alice", true)
	assert.Error(t, err)
}

func TestRestartVoting(t *testing.T) {
	ctx := context.Background()
	m := NewMatches(newMemStore())
	gameID := "game-alice-bob"

	// An empty hash never counts as unanimous.
	all, err := m.AllRestart(ctx, gameID)
	require.NoError(t, err)
	assert.False(t, all)

	_, err = m.Init(ctx, gameID, "alice")
	require.NoError(t, err)
	_, err = m.Init(ctx, gameID, "bob")
	require.NoError(t, err)

	require.NoError(t, m.SetRestart(ctx, gameID, "alice", true))
	all, err = m.AllRestart(ctx, gameID)
	require.NoError(t, err)
	assert.False(t, all)

	require.NoError(t, m.SetRestart(ctx, gameID, "bob", true))
	all, err = m.AllRestart(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, all)

	// Reset wipes the votes so the next round starts clean.
	require.NoError(t, m.Reset(ctx, gameID, "alice", "bob"))
	all, err = m.AllRestart(ctx, gameID)
	require.NoError(t, err)
	assert.False(t, all)

	statuses, err := m.Statuses(ctx, gameID)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	for player, st := range statuses {
		assert.Equalf(t, Connected, st.Phase(), "player %s", player)
		assert.False(t, st.Restart)
	}
}
