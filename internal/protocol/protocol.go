// Package protocol defines the JSON wire units exchanged over the streaming
// chat WebSocket.
package protocol

// Event type tags (server → client)
const (
	EventSessionCreated = "session_created"
	EventAssistant      = "assistant"
	EventStreamDone     = "stream_done"
	EventError          = "error"
)

// Envelope is the client → server wire unit: one user utterance. A nil
// SessionID asks the server to create a new session for this conversation.
type Envelope struct {
	Text      string  `json:"text"`
	Email     string  `json:"email"`
	SessionID *string `json:"sessionId"`
}

// Event is the server → client wire unit, tagged by Type.
//   - session_created carries SessionID
//   - assistant carries one Text chunk
//   - stream_done carries nothing
//   - error carries Error
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}
