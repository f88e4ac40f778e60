// internal/handlers/utils.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 5 * time.Second

// userGroup is the channel-layer group that addresses one user's lobby
// sessions.
func userGroup(username string) string { return "user_" + username }

// writeJSON marshals v and sends it as a text frame. Safe for concurrent
// callers; the connection serializes writers internally.
func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}

// writeWsError sends a typed error message to the client, best-effort.
func writeWsError(ctx context.Context, c *websocket.Conn, message string) {
	_ = writeJSON(ctx, c, map[string]any{
		"type":    "error",
		"message": message,
	})
}
