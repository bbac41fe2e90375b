package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in a session transcript.
type Turn struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Reasoning  string    `json:"reasoning,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	FromSearch bool      `json:"fromSearch"`
}

// Visible returns the turn as shown to a client. Reasoning is dropped when
// showReasoning is off; the stored turn is not modified.
func (t Turn) Visible(showReasoning bool) Turn {
	if !showReasoning {
		t.Reasoning = ""
	}
	return t
}

// Reply is the chat model's answer to a single turn.
type Reply struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// SearchResult is one organic web search hit, consumed once per turn.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}
