package session

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents a persisted conversation thread
type Session struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Summary is the sidebar view of a session: id, title and creation time
// without the message list.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// TitleFromText derives a session title from the first utterance: the first
// 30 characters plus an ellipsis marker.
func TitleFromText(text string) string {
	r := []rune(text)
	if len(r) > 30 {
		r = r[:30]
	}
	return string(r) + "..."
}
