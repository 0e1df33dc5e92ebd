package service

import "fmt"

// WSConfig holds WebSocket URL base for responses.
type WSConfig struct {
	BaseURL string
}

// WSURL returns the live channel URL of a party (e.g. wss://host/ws/parties/sessionID).
func (c *WSConfig) WSURL(sessionID string) string {
	if c == nil || c.BaseURL == "" {
		return fmt.Sprintf("/ws/parties/%s", sessionID)
	}
	base := c.BaseURL
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ws/parties/%s", base, sessionID)
}
