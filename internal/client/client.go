// Package client connects to the chat gateway and reconstructs streamed
// assistant replies into full messages.
package client

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"FridayChat/internal/protocol"
	"FridayChat/internal/session"

	"github.com/gorilla/websocket"
)

// CannedReply is answered locally when the user asks the assistant who it
// is, without a model round trip.
const CannedReply = "I am Friday. What can I help you with?"

// Handlers receives assembler lifecycle notifications. All callbacks are
// optional and are invoked from the Listen goroutine.
type Handlers struct {
	// OnSessionCreated fires when the server assigns a session id for a new
	// conversation, so the session list can be refreshed.
	OnSessionCreated func(sessionID string)
	// OnChunk fires for every assistant fragment as it arrives.
	OnChunk func(text string)
	// OnTurnDone fires when a turn completes, with the full assembled text
	// and whether voice output was requested for this turn.
	OnTurnDone func(final string, speak bool)
	// OnError fires when the server reports a failed turn.
	OnError func(message string)
}

// Client is the stream assembler: it owns the WebSocket connection, the
// ordered message list for the active session and the current session id.
type Client struct {
	conn     *websocket.Conn
	email    string
	handlers Handlers
	logger   *slog.Logger

	mu         sync.Mutex
	sessionID  string
	messages   []session.Message
	assembling bool // a streamed assistant message is being built
	speakTurn  bool // voice output requested for the in-flight turn
	closed     bool
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(wsURL, email string, handlers Handlers, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	logger.Info("connected to chat gateway", "url", wsURL)
	return &Client{
		conn:     conn,
		email:    strings.ToLower(strings.TrimSpace(email)),
		handlers: handlers,
		logger:   logger,
	}, nil
}

// SessionID returns the active session id, empty before the first turn of a
// new conversation completes session creation.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a snapshot of the conversation so far.
func (c *Client) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// NewConversation drops the local message list and session id; the next Send
// will create a fresh session on the server.
func (c *Client) NewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
	c.messages = nil
	c.assembling = false
}

// LoadSession switches to a previously persisted session with its history.
func (c *Client) LoadSession(id string, messages []session.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
	c.messages = append([]session.Message(nil), messages...)
	c.assembling = false
}

// Send submits one user turn. The user message is appended locally before
// the round trip; the server's persisted copy is the source of truth on
// reload. voice marks the turn for spoken output when it completes.
func (c *Client) Send(text string, voice bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	c.speakTurn = voice
	c.assembling = false
	c.messages = append(c.messages, session.Message{
		Role:      session.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	})
	sessionID := c.sessionID

	lower := strings.ToLower(text)
	if strings.Contains(lower, "your name") || strings.Contains(lower, "who are you") {
		c.messages = append(c.messages, session.Message{
			Role:      session.RoleAssistant,
			Text:      CannedReply,
			Timestamp: time.Now(),
		})
		c.mu.Unlock()
		if c.handlers.OnChunk != nil {
			c.handlers.OnChunk(CannedReply)
		}
		if c.handlers.OnTurnDone != nil {
			c.handlers.OnTurnDone(CannedReply, voice)
		}
		return nil
	}
	c.mu.Unlock()

	env := protocol.Envelope{Text: text, Email: c.email}
	if sessionID != "" {
		env.SessionID = &sessionID
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Listen reads events until the connection closes, applying each one to the
// message list. It returns nil after Close, the read error otherwise.
func (c *Client) Listen() error {
	for {
		var ev protocol.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		c.apply(ev)
	}
}

// apply merges one server event into the assembler state.
func (c *Client) apply(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventSessionCreated:
		c.mu.Lock()
		c.sessionID = ev.SessionID
		c.mu.Unlock()
		if c.handlers.OnSessionCreated != nil {
			c.handlers.OnSessionCreated(ev.SessionID)
		}

	case protocol.EventAssistant:
		// Chunk boundaries are not semantic: append to the assistant message
		// being assembled, or start one if this is the turn's first chunk.
		c.mu.Lock()
		last := len(c.messages) - 1
		if c.assembling && last >= 0 && c.messages[last].Role == session.RoleAssistant {
			c.messages[last].Text += ev.Text
		} else {
			c.messages = append(c.messages, session.Message{
				Role:      session.RoleAssistant,
				Text:      ev.Text,
				Timestamp: time.Now(),
			})
			c.assembling = true
		}
		c.mu.Unlock()
		if c.handlers.OnChunk != nil {
			c.handlers.OnChunk(ev.Text)
		}

	case protocol.EventStreamDone:
		c.mu.Lock()
		c.assembling = false
		speak := c.speakTurn
		var final string
		if last := len(c.messages) - 1; last >= 0 && c.messages[last].Role == session.RoleAssistant {
			final = c.messages[last].Text
		}
		c.mu.Unlock()
		if c.handlers.OnTurnDone != nil {
			c.handlers.OnTurnDone(final, speak)
		}

	case protocol.EventError:
		// A failed turn is shown, not swallowed: the error becomes the
		// turn's terminal assistant message.
		c.mu.Lock()
		c.assembling = false
		c.messages = append(c.messages, session.Message{
			Role:      session.RoleAssistant,
			Text:      ev.Error,
			Timestamp: time.Now(),
		})
		c.mu.Unlock()
		if c.handlers.OnError != nil {
			c.handlers.OnError(ev.Error)
		}

	default:
		c.logger.Warn("unknown event type", "type", ev.Type)
	}
}

// Close shuts the connection down; a blocked Listen returns nil.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
