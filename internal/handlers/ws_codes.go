// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the lobby and game handlers.
const (
	// ForbiddenGameError closes a game socket whose user is not a
	// participant of the requested game, or was fully disconnected from it.
	ForbiddenGameError websocket.StatusCode = 4000
)
