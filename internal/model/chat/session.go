package chat

import (
	"time"

	"github.com/zhouzirui/kopx/backend/internal/model/mode"
)

// Config holds the per-session user preferences.
type Config struct {
	Mode          mode.Mode `json:"mode"`
	ShowReasoning bool      `json:"showReasoning"`
}

// DefaultConfig is applied to new sessions.
func DefaultConfig() Config {
	return Config{Mode: mode.Default, ShowReasoning: true}
}

// Session is a point-in-time view of a conversation.
type Session struct {
	ID        string    `json:"id"`
	Config    Config    `json:"config"`
	Turns     []Turn    `json:"turns"`
	Busy      bool      `json:"busy"`
	CreatedAt time.Time `json:"createdAt"`
}
