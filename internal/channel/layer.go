// internal/channel/layer.go
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// groupChannelPrefix namespaces the Redis pub/sub channels used for groups.
const groupChannelPrefix = "bs:group:"

// Subscriber is one session's end of the channel layer. Deliver must not
// block; a session that cannot keep up drops events.
type Subscriber interface {
	SessionID() uuid.UUID
	Deliver(Event)
}

// Layer is the pub/sub fan-out. Group sends are published through Redis so
// that every broker-backed instance fans the event out to its own local
// subscribers; within one (group, session) pair delivery preserves arrival
// order.
type Layer struct {
	log    *logrus.Logger
	rdb    *redis.Client
	pubsub *redis.PubSub

	mu     sync.Mutex
	groups map[string]map[uuid.UUID]Subscriber
	// memberships tracks which groups each session has joined, so a closing
	// session can be discarded from everything in one call.
	memberships map[uuid.UUID]map[string]struct{}
}

// New creates the layer and starts its receive loop. The loop runs until ctx
// is cancelled.
func New(ctx context.Context, rdb *redis.Client, log *logrus.Logger) *Layer {
	l := &Layer{
		log:         log,
		rdb:         rdb,
		pubsub:      rdb.Subscribe(ctx),
		groups:      make(map[string]map[uuid.UUID]Subscriber),
		memberships: make(map[uuid.UUID]map[string]struct{}),
	}
	go l.receiveLoop(ctx)
	return l
}

// GroupAdd subscribes sub to group. The first local member of a group also
// subscribes this instance to the group's Redis channel.
func (l *Layer) GroupAdd(ctx context.Context, group string, sub Subscriber) error {
	l.mu.Lock()
	members, ok := l.groups[group]
	if !ok {
		members = make(map[uuid.UUID]Subscriber)
		l.groups[group] = members
	}
	first := len(members) == 0
	members[sub.SessionID()] = sub

	joined, ok := l.memberships[sub.SessionID()]
	if !ok {
		joined = make(map[string]struct{})
		l.memberships[sub.SessionID()] = joined
	}
	joined[group] = struct{}{}
	l.mu.Unlock()

	if first {
		if err := l.pubsub.Subscribe(ctx, groupChannelPrefix+group); err != nil {
			return fmt.Errorf("subscribe group %q: %w", group, err)
		}
	}
	return nil
}

// GroupDiscard removes sub from group. The last local member leaving drops
// the Redis channel subscription.
func (l *Layer) GroupDiscard(ctx context.Context, group string, sub Subscriber) error {
	l.mu.Lock()
	last := l.discardLocked(group, sub.SessionID())
	l.mu.Unlock()

	if last {
		if err := l.pubsub.Unsubscribe(ctx, groupChannelPrefix+group); err != nil {
			return fmt.Errorf("unsubscribe group %q: %w", group, err)
		}
	}
	return nil
}

// DiscardAll removes sub from every group it has joined.
func (l *Layer) DiscardAll(ctx context.Context, sub Subscriber) error {
	l.mu.Lock()
	var emptied []string
	for group := range l.memberships[sub.SessionID()] {
		if l.discardLocked(group, sub.SessionID()) {
			emptied = append(emptied, groupChannelPrefix+group)
		}
	}
	delete(l.memberships, sub.SessionID())
	l.mu.Unlock()

	if len(emptied) > 0 {
		if err := l.pubsub.Unsubscribe(ctx, emptied...); err != nil {
			return fmt.Errorf("unsubscribe groups: %w", err)
		}
	}
	return nil
}

// discardLocked removes the session from the group and reports whether the
// group now has no local members. Caller holds l.mu.
func (l *Layer) discardLocked(group string, sessionID uuid.UUID) bool {
	members, ok := l.groups[group]
	if !ok {
		return false
	}
	if _, present := members[sessionID]; !present {
		return false
	}
	delete(members, sessionID)
	if joined, ok := l.memberships[sessionID]; ok {
		delete(joined, group)
	}
	if len(members) == 0 {
		delete(l.groups, group)
		return true
	}
	return false
}

// GroupSend publishes ev to every subscriber of group, on every instance.
func (l *Layer) GroupSend(ctx context.Context, group string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %q: %w", ev.Kind, err)
	}
	if err := l.rdb.Publish(ctx, groupChannelPrefix+group, payload).Err(); err != nil {
		return fmt.Errorf("publish to group %q: %w", group, err)
	}
	return nil
}

func (l *Layer) receiveLoop(ctx context.Context) {
	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = l.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			group := strings.TrimPrefix(msg.Channel, groupChannelPrefix)
			l.dispatch(group, []byte(msg.Payload))
		}
	}
}

// dispatch fans a raw event payload out to the local subscribers of group.
func (l *Layer) dispatch(group string, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.log.Warnf("channel: bad event payload on group %q: %v", group, err)
		return
	}

	l.mu.Lock()
	subs := make([]Subscriber, 0, len(l.groups[group]))
	for _, sub := range l.groups[group] {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Deliver(ev)
	}
}
