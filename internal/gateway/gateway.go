package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"FridayChat/internal/cache"
	"FridayChat/internal/config"
	"FridayChat/internal/gen"
	"FridayChat/internal/protocol"
	"FridayChat/internal/session"
	"FridayChat/internal/store"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const identityCacheTTL = 5 * time.Minute

// Gateway owns the per-client streaming connections. Each connection carries
// client envelopes in, and session/stream events out; envelopes are processed
// strictly in arrival order, one turn at a time.
type Gateway struct {
	store         *store.Store
	streamer      gen.Streamer
	identities    *cache.Identities
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	upgrader      websocket.Upgrader
	streamTimeout time.Duration
}

// New creates a gateway around the given store and generation backend.
func New(st *store.Store, streamer gen.Streamer, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, streamTimeout time.Duration) *Gateway {
	if streamTimeout <= 0 {
		streamTimeout = config.DefaultStreamTimeout
	}
	return &Gateway{
		store:      st,
		streamer:   streamer,
		identities: cache.NewIdentities(identityCacheTTL),
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		streamTimeout: streamTimeout,
	}
}

// HandleWS upgrades the request and serves the connection's envelope loop
// until the client disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	g.logger.Info("client connected", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			g.logger.Info("client disconnected", "remote", conn.RemoteAddr().String())
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed input is dropped without a response.
			continue
		}

		g.handleTurn(ctx, conn, env)
	}
}

// handleTurn runs one full streaming turn: resolve or create the session,
// stream the reply, persist the assistant message.
func (g *Gateway) handleTurn(ctx context.Context, conn *websocket.Conn, env protocol.Envelope) {
	if strings.TrimSpace(env.Text) == "" || strings.TrimSpace(env.Email) == "" {
		return
	}

	ctx, span := g.tracer.Start(ctx, "gateway_turn")
	defer span.End()
	start := time.Now()

	email := strings.ToLower(strings.TrimSpace(env.Email))

	sessionID, ok := g.resolveSession(ctx, conn, env, email)
	if !ok {
		return
	}

	full, chunks, err := g.streamReply(ctx, conn, env.Text)
	if err != nil {
		if errors.Is(err, errClientGone) {
			// The client that needed this reply is gone; drop the partial
			// buffer and let the connection loop exit on its next read.
			g.logger.Info("turn abandoned, client gone", "session_id", sessionID)
			return
		}
		g.logger.Error("generation failed", "session_id", sessionID, "error", err)
		g.countTurn(ctx, "error")
		g.writeEvent(conn, protocol.Event{Type: protocol.EventError, Error: "AI Error: " + err.Error()})
		return
	}

	// The assistant message is persisted only after the stream completed, so
	// the stored text is exactly the concatenation of the chunks sent.
	if err := g.store.AppendMessage(sessionID, session.Message{
		Role:      session.RoleAssistant,
		Text:      full,
		Timestamp: time.Now(),
	}); err != nil {
		g.logger.Error("failed to persist assistant message", "session_id", sessionID, "error", err)
		g.countTurn(ctx, "error")
		g.writeEvent(conn, protocol.Event{Type: protocol.EventError, Error: "failed to save reply"})
		return
	}

	g.writeEvent(conn, protocol.Event{Type: protocol.EventStreamDone})
	g.countTurn(ctx, "ok")
	g.recordTurnDuration(ctx, time.Since(start))
	g.logger.Info("turn complete", "session_id", sessionID, "chunks", chunks, "chars", len(full))
}

// resolveSession appends the user message to an existing session, or creates
// a new one and emits session_created before any streaming starts. The second
// result is false when the turn must not proceed.
func (g *Gateway) resolveSession(ctx context.Context, conn *websocket.Conn, env protocol.Envelope, email string) (string, bool) {
	userMsg := session.Message{
		Role:      session.RoleUser,
		Text:      env.Text,
		Timestamp: time.Now(),
	}

	if env.SessionID != nil && *env.SessionID != "" {
		if err := g.store.AppendMessage(*env.SessionID, userMsg); err != nil {
			g.logger.Error("failed to persist user message", "session_id", *env.SessionID, "error", err)
			g.writeEvent(conn, protocol.Event{Type: protocol.EventError, Error: "failed to save message"})
			return "", false
		}
		return *env.SessionID, true
	}

	userID := g.resolveIdentity(ctx, email)
	id, err := g.store.CreateSession(email, userID, session.TitleFromText(env.Text), userMsg)
	if err != nil {
		g.logger.Error("failed to create session", "email", email, "error", err)
		g.writeEvent(conn, protocol.Event{Type: protocol.EventError, Error: "failed to create session"})
		return "", false
	}

	g.logger.Info("session created", "session_id", id, "email", email)
	if !g.writeEvent(conn, protocol.Event{Type: protocol.EventSessionCreated, SessionID: id}) {
		return "", false
	}
	return id, true
}

// resolveIdentity maps an email to a registered account ID, caching the
// result. An unresolved email yields an empty ID; the session is still
// created without an owner link.
func (g *Gateway) resolveIdentity(ctx context.Context, email string) string {
	if userID, ok := g.identities.Get(email); ok {
		return userID
	}

	_, span := g.tracer.Start(ctx, "identity_lookup")
	defer span.End()

	acc, err := g.store.FindAccountByEmail(email)
	if errors.Is(err, store.ErrNotFound) {
		g.identities.Put(email, "")
		return ""
	}
	if err != nil {
		g.logger.Warn("identity lookup failed", "email", email, "error", err)
		return ""
	}
	g.identities.Put(email, acc.ID)
	return acc.ID
}

// errClientGone marks a turn aborted because the connection write failed.
var errClientGone = errors.New("client connection gone")

// streamReply invokes the generation backend and relays each chunk to the
// client, returning the full concatenated reply.
func (g *Gateway) streamReply(ctx context.Context, conn *websocket.Conn, prompt string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.streamTimeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "generation_stream")
	defer span.End()

	stream, err := g.streamer.StreamCompletion(ctx, SystemInstruction(time.Now()), prompt)
	if err != nil {
		return "", 0, err
	}
	defer stream.Close()

	var full strings.Builder
	chunks := 0
	for text := range stream.Chunks() {
		full.WriteString(text)
		chunks++
		g.countChunk(ctx)
		if !g.writeEvent(conn, protocol.Event{Type: protocol.EventAssistant, Text: text}) {
			return "", chunks, errClientGone
		}
	}
	if err := stream.Err(); err != nil {
		return "", chunks, err
	}
	return full.String(), chunks, nil
}

// SystemInstruction builds the per-call instruction context. It embeds the
// current wall-clock time in long form so the model can answer temporal
// questions; it is rebuilt on every call because the clock advances.
func SystemInstruction(now time.Time) string {
	dateString := now.Format("Monday, January 2, 2006, 03:04 PM")
	return fmt.Sprintf("You are Friday, a helpful AI assistant. Today's real-world date and time is %s. Use this to answer temporal questions accurately.", dateString)
}

// writeEvent sends one event, reporting false when the connection is gone.
func (g *Gateway) writeEvent(conn *websocket.Conn, ev protocol.Event) bool {
	if err := conn.WriteJSON(ev); err != nil {
		g.logger.Warn("failed to write event", "type", ev.Type, "error", err)
		return false
	}
	return true
}

func (g *Gateway) countTurn(ctx context.Context, outcome string) {
	counter, err := g.meter.Int64Counter(
		fmt.Sprintf("chat.turns.%s", outcome),
		metric.WithDescription(fmt.Sprintf("Streaming turns that ended with outcome: %s", outcome)),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1)
}

func (g *Gateway) countChunk(ctx context.Context) {
	counter, err := g.meter.Int64Counter(
		"chat.chunks.relayed",
		metric.WithDescription("Assistant chunks relayed to clients"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1)
}

func (g *Gateway) recordTurnDuration(ctx context.Context, d time.Duration) {
	histogram, err := g.meter.Float64Histogram(
		"chat.turn.duration",
		metric.WithDescription("Streaming turn duration in milliseconds"),
	)
	if err != nil {
		return
	}
	histogram.Record(ctx, float64(d.Milliseconds()))
}
