// internal/service/invite.go
package service

import (
	"context"
	"time"

	"github.com/saltline/broadside/internal/cache"
)

// InviteTTL is the lifetime of an invite; it is never extended.
const InviteTTL = 60 * time.Second

// Invites manages directed, time-limited game invitations. An invite
// (from, to) is stored symmetrically: `to`'s incoming set gains `from`, and
// `from`'s outgoing set gains `to`, both with the invite TTL. Expiry is
// "both sides gone"; a half-removed pair heals itself when the TTL fires.
type Invites struct {
	store cache.Store
}

func NewInvites(store cache.Store) *Invites {
	return &Invites{store: store}
}

// InviteState is one user's view of pending invites.
type InviteState struct {
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

func incomingKey(username string) string { return "invites_incoming:" + username }
func outgoingKey(username string) string { return "invites_outgoing:" + username }

// Add creates the invite pair. Adding refreshes both sets' TTL.
func (i *Invites) Add(ctx context.Context, from, to string) error {
	if err := i.store.AddToSet(ctx, incomingKey(to), from, InviteTTL); err != nil {
		return err
	}
	return i.store.AddToSet(ctx, outgoingKey(from), to, InviteTTL)
}

// Remove deletes both sides of the pair. Used for accept, decline and
// cancel alike.
func (i *Invites) Remove(ctx context.Context, from, to string) error {
	if err := i.store.RemoveFromSet(ctx, incomingKey(to), from); err != nil {
		return err
	}
	return i.store.RemoveFromSet(ctx, outgoingKey(from), to)
}

// State returns the user's current incoming and outgoing invites.
func (i *Invites) State(ctx context.Context, username string) (InviteState, error) {
	incoming, err := i.store.Members(ctx, incomingKey(username))
	if err != nil {
		return InviteState{}, err
	}
	outgoing, err := i.store.Members(ctx, outgoingKey(username))
	if err != nil {
		return InviteState{}, err
	}
	if incoming == nil {
		incoming = []string{}
	}
	if outgoing == nil {
		outgoing = []string{}
	}
	return InviteState{Incoming: incoming, Outgoing: outgoing}, nil
}

// Expired reports whether both sides of the (from, to) invite are gone.
func (i *Invites) Expired(ctx context.Context, from, to string) (bool, error) {
	existsIncoming, err := i.store.Exists(ctx, incomingKey(to))
	if err != nil {
		return false, err
	}
	existsOutgoing, err := i.store.Exists(ctx, outgoingKey(from))
	if err != nil {
		return false, err
	}
	return !existsIncoming && !existsOutgoing, nil
}
