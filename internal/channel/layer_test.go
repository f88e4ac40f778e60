// internal/channel/layer_test.go
package channel

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber records delivered events.
type fakeSubscriber struct {
	id     uuid.UUID
	events []Event
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{id: uuid.New()}
}

func (f *fakeSubscriber) SessionID() uuid.UUID { return f.id }
func (f *fakeSubscriber) Deliver(ev Event)     { f.events = append(f.events, ev) }

// newTestLayer builds a layer with its local registry only; the pubsub side
// needs a broker and is exercised against a real Redis elsewhere.
func newTestLayer() *Layer {
	return &Layer{
		log:         logrus.New(),
		groups:      make(map[string]map[uuid.UUID]Subscriber),
		memberships: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (l *Layer) addLocal(group string, sub Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.groups[group] == nil {
		l.groups[group] = make(map[uuid.UUID]Subscriber)
	}
	l.groups[group][sub.SessionID()] = sub
	if l.memberships[sub.SessionID()] == nil {
		l.memberships[sub.SessionID()] = make(map[string]struct{})
	}
	l.memberships[sub.SessionID()][group] = struct{}{}
}

func mustPayload(t *testing.T, ev Event) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestDispatchFansOutToGroupMembers(t *testing.T) {
	l := newTestLayer()
	a := newFakeSubscriber()
	b := newFakeSubscriber()
	other := newFakeSubscriber()
	l.addLocal("lobby_users", a)
	l.addLocal("lobby_users", b)
	l.addLocal("user_carol", other)

	ev := Event{Kind: KindUserList}
	l.dispatch("lobby_users", mustPayload(t, ev))

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, ev, a.events[0])
	assert.Empty(t, other.events)
}

func TestDispatchPreservesOrderPerSubscriber(t *testing.T) {
	l := newTestLayer()
	sub := newFakeSubscriber()
	l.addLocal("game-alice-bob", sub)

	first := Event{Kind: KindGameUpdate}
	second := Event{Kind: KindChatHistory, ChatID: "gamechat:game-alice-bob"}
	l.dispatch("game-alice-bob", mustPayload(t, first))
	l.dispatch("game-alice-bob", mustPayload(t, second))

	require.Len(t, sub.events, 2)
	assert.Equal(t, first, sub.events[0])
	assert.Equal(t, second, sub.events[1])
}

func TestDispatchIgnoresBadPayload(t *testing.T) {
	l := newTestLayer()
	sub := newFakeSubscriber()
	l.addLocal("lobby_users", sub)

	l.dispatch("lobby_users", []byte("not json"))
	assert.Empty(t, sub.events)
}

func TestDispatchToUnknownGroupIsNoop(t *testing.T) {
	l := newTestLayer()
	l.dispatch("nobody_home", mustPayload(t, Event{Kind: KindUserList}))
}

func TestDiscardLocked(t *testing.T) {
	l := newTestLayer()
	a := newFakeSubscriber()
	b := newFakeSubscriber()
	l.addLocal("lobby_users", a)
	l.addLocal("lobby_users", b)

	l.mu.Lock()
	last := l.discardLocked("lobby_users", a.SessionID())
	l.mu.Unlock()
	assert.False(t, last)

	l.dispatch("lobby_users", mustPayload(t, Event{Kind: KindUserList}))
	assert.Empty(t, a.events)
	assert.Len(t, b.events, 1)

	// The last member leaving empties and removes the group.
	l.mu.Lock()
	last = l.discardLocked("lobby_users", b.SessionID())
	l.mu.Unlock()
	assert.True(t, last)

	l.mu.Lock()
	_, exists := l.groups["lobby_users"]
	l.mu.Unlock()
	assert.False(t, exists)

	// Discarding an absent member is a no-op.
	l.mu.Lock()
	last = l.discardLocked("lobby_users", a.SessionID())
	l.mu.Unlock()
	assert.False(t, last)
}

func TestEventJSONOmitsEmptyTags(t *testing.T) {
	data, err := json.Marshal(Event{Kind: KindEnemyLeft, From: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"game.enemy_left","from":"alice"}`, string(data))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"lobby.invite_state"}`), &ev))
	assert.Equal(t, KindInviteState, ev.Kind)
	assert.Empty(t, ev.From)
}
