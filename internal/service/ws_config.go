package service

import "fmt"

// WSConfig holds WebSocket URL base for responses.
type WSConfig struct {
	BaseURL string
}

// WSURL returns the try-on WebSocket URL for a session (e.g.
// wss://host/ws/try-on/sessionToken).
func (c *WSConfig) WSURL(sessionToken string) string {
	if c == nil || c.BaseURL == "" {
		return fmt.Sprintf("/ws/try-on/%s", sessionToken)
	}
	base := c.BaseURL
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ws/try-on/%s", base, sessionToken)
}
