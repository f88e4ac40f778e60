// internal/handlers/api_server.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/saltline/broadside/internal/cache"
	"github.com/saltline/broadside/internal/channel"
	"github.com/saltline/broadside/internal/engine"
	"github.com/saltline/broadside/internal/service"
)

// Server bundles the session fabric's collaborators for the WS handlers:
// the keyed store, the channel layer, the rules engine and the services
// built on the store.
type Server struct {
	Log      *logrus.Logger
	Store    cache.Store
	Channels *channel.Layer
	Engine   *engine.Engine

	Presence *service.Presence
	Invites  *service.Invites
	Chats    *service.Chats
	Matches  *service.Matches
}

// NewServer wires the services over the given store and channel layer.
func NewServer(log *logrus.Logger, store cache.Store, channels *channel.Layer, eng *engine.Engine) *Server {
	return &Server{
		Log:      log,
		Store:    store,
		Channels: channels,
		Engine:   eng,
		Presence: service.NewPresence(store),
		Invites:  service.NewInvites(store),
		Chats:    service.NewChats(store),
		Matches:  service.NewMatches(store),
	}
}
