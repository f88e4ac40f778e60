// internal/handlers/tasks.go
//
// Fire-and-forget background tasks spawned from session handlers. None of
// them is tied to a session's lifetime; each re-reads state when it wakes
// and becomes a no-op if the world has moved on.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/saltline/broadside/internal/channel"
	"github.com/saltline/broadside/internal/service"
)

const (
	// invitePollInterval is how often the watcher re-checks after the
	// initial TTL sleep.
	invitePollInterval = 5 * time.Second

	// chatCleanupDelay lets the other participant's presence TTL expire so
	// cleanup cannot race a legitimate reconnect.
	chatCleanupDelay = 30 * time.Second
)

// watchInvite sleeps out the invite TTL, then polls until both sides of the
// (from, to) pair are gone and pushes a refreshed invite state to both
// endpoints. Each invite gets its own watcher.
func watchInvite(srv *Server, from, to string) {
	ctx := context.Background()
	time.Sleep(service.InviteTTL)
	for {
		expired, err := srv.Invites.Expired(ctx, from, to)
		if err != nil {
			srv.Log.Warnf("invite watcher %s->%s: %v", from, to, err)
			return
		}
		if expired {
			stateEv := channel.Event{Kind: channel.KindInviteState}
			if err := srv.Channels.GroupSend(ctx, userGroup(from), stateEv); err != nil {
				srv.Log.Warnf("invite watcher %s->%s: %v", from, to, err)
			}
			if err := srv.Channels.GroupSend(ctx, userGroup(to), stateEv); err != nil {
				srv.Log.Warnf("invite watcher %s->%s: %v", from, to, err)
			}
			return
		}
		time.Sleep(invitePollInterval)
	}
}

// cleanupLobbyChats deletes the user's 1:1 lobby chats whose every other
// participant has gone offline, along with the per-user chat indexes.
// Runs after lobby disconnect and after game full-disconnect.
func cleanupLobbyChats(srv *Server, username string) {
	time.Sleep(chatCleanupDelay)
	ctx := context.Background()

	chats, err := srv.Chats.TrackedChats(ctx, username)
	if err != nil {
		srv.Log.Warnf("chat cleanup for %s: %v", username, err)
		return
	}

	for _, chatID := range chats {
		participants := strings.Split(chatID, "_")
		active := false
		for _, participant := range participants {
			if participant == username {
				continue
			}
			online, err := srv.Presence.IsOnline(ctx, participant)
			if err != nil {
				srv.Log.Warnf("chat cleanup for %s: %v", username, err)
				return
			}
			if online {
				active = true
				break
			}
		}
		if active {
			continue
		}

		if err := srv.Chats.Delete(ctx, chatID); err != nil {
			srv.Log.Warnf("chat cleanup for %s: %v", username, err)
			continue
		}
		for _, participant := range participants {
			if err := srv.Chats.Untrack(ctx, participant, chatID); err != nil {
				srv.Log.Warnf("chat cleanup for %s: %v", username, err)
			}
		}
	}
}
