package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FridayChat/internal/gen"
	"FridayChat/internal/protocol"
	"FridayChat/internal/session"
	"FridayChat/internal/store"

	"github.com/gorilla/websocket"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestGateway(t *testing.T, streamer gen.Streamer) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := New(st, streamer,
		logger,
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		5*time.Second,
	)

	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTurn collects events until stream_done or error.
func readTurn(t *testing.T, conn *websocket.Conn) []protocol.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var events []protocol.Event
	for {
		var ev protocol.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, ev)
		if ev.Type == protocol.EventStreamDone || ev.Type == protocol.EventError {
			return events
		}
	}
}

func TestEndToEndConversation(t *testing.T) {
	streamer := &gen.FakeStreamer{Chunks: []string{"Hello", ", I am", " Friday"}}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	// First turn: no session id, so the server must create one and announce
	// it before streaming.
	if err := conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	events := readTurn(t, conn)

	if events[0].Type != protocol.EventSessionCreated || events[0].SessionID == "" {
		t.Fatalf("expected session_created first, got %+v", events[0])
	}
	sessionID := events[0].SessionID

	var assembled strings.Builder
	chunkCount := 0
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != protocol.EventAssistant {
			t.Fatalf("expected assistant events between created and done, got %+v", ev)
		}
		assembled.WriteString(ev.Text)
		chunkCount++
	}
	if chunkCount == 0 {
		t.Fatal("expected at least one assistant chunk")
	}
	if events[len(events)-1].Type != protocol.EventStreamDone {
		t.Fatalf("expected stream_done last, got %+v", events[len(events)-1])
	}

	// Follow-up turn reuses the session: no session_created again.
	sid := sessionID
	if err := conn.WriteJSON(protocol.Envelope{Text: "And you?", Email: "a@b.com", SessionID: &sid}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	for _, ev := range readTurn(t, conn) {
		if ev.Type == protocol.EventSessionCreated {
			t.Fatalf("follow-up turn must not re-emit session_created: %+v", ev)
		}
	}

	// Persisted history: user, assistant, user, assistant.
	msgs, err := st.GetMessages(sessionID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 persisted messages, got %d", len(msgs))
	}
	wantRoles := []string{session.RoleUser, session.RoleAssistant, session.RoleUser, session.RoleAssistant}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("message %d: role %q, want %q", i, msgs[i].Role, role)
		}
	}

	// The persisted assistant text is exactly the concatenation of the
	// chunks that were sent.
	if msgs[1].Text != assembled.String() {
		t.Errorf("persisted %q, client assembled %q", msgs[1].Text, assembled.String())
	}
}

func TestNullSessionTwiceCreatesTwoSessions(t *testing.T) {
	streamer := &gen.FakeStreamer{Chunks: []string{"ok"}}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	var ids []string
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "a@b.com"}); err != nil {
			t.Fatalf("failed to send: %v", err)
		}
		events := readTurn(t, conn)
		if events[0].Type != protocol.EventSessionCreated {
			t.Fatalf("expected session_created, got %+v", events[0])
		}
		ids = append(ids, events[0].SessionID)
	}
	if ids[0] == ids[1] {
		t.Fatalf("expected two distinct sessions, both were %s", ids[0])
	}

	sessions, err := st.ListSessions("a@b.com")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestPartialFailureNotPersisted(t *testing.T) {
	streamer := &gen.FakeStreamer{
		Chunks:   []string{"Hel", "lo"},
		FailWith: errors.New("quota exceeded"),
	}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	events := readTurn(t, conn)

	last := events[len(events)-1]
	if last.Type != protocol.EventError {
		t.Fatalf("expected a terminal error event, got %+v", last)
	}
	if !strings.Contains(last.Error, "quota exceeded") {
		t.Errorf("expected the failure reason in the error, got %q", last.Error)
	}

	// "Hello" was shown transiently but must not be persisted: the session
	// holds only the user turn.
	sessionID := events[0].SessionID
	msgs, err := st.GetMessages(sessionID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != session.RoleUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}
}

func TestMalformedEnvelopesDroppedSilently(t *testing.T) {
	streamer := &gen.FakeStreamer{Chunks: []string{"ok"}}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	// Missing text, missing email, and unparseable JSON: all dropped without
	// a response or a session mutation.
	conn.WriteJSON(protocol.Envelope{Text: "", Email: "a@b.com"})
	conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "   "})
	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))

	// A valid envelope afterwards still works, and its session_created is
	// the first event the connection ever sees.
	if err := conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	events := readTurn(t, conn)
	if events[0].Type != protocol.EventSessionCreated {
		t.Fatalf("expected session_created first, got %+v", events[0])
	}

	sessions, err := st.ListSessions("a@b.com")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected exactly 1 session, got %d", len(sessions))
	}
}

func TestStartErrorEmitsErrorEvent(t *testing.T) {
	streamer := &gen.FakeStreamer{StartErr: errors.New("API key not valid")}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(protocol.Envelope{Text: "Hi", Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	events := readTurn(t, conn)
	last := events[len(events)-1]
	if last.Type != protocol.EventError || !strings.Contains(last.Error, "API key not valid") {
		t.Fatalf("expected error event with reason, got %+v", last)
	}

	// The user turn was persisted before generation was attempted.
	msgs, err := st.GetMessages(events[0].SessionID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
}

func TestTitleDerivedFromFirstUtterance(t *testing.T) {
	streamer := &gen.FakeStreamer{Chunks: []string{"ok"}}
	srv, st := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	long := "Tell me everything about the history of computing machines"
	if err := conn.WriteJSON(protocol.Envelope{Text: long, Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	readTurn(t, conn)

	sessions, err := st.ListSessions("a@b.com")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	want := long[:30] + "..."
	if sessions[0].Title != want {
		t.Errorf("title %q, want %q", sessions[0].Title, want)
	}
}

func TestSystemInstructionCarriesLiveDate(t *testing.T) {
	streamer := &gen.FakeStreamer{Chunks: []string{"ok"}}
	srv, _ := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(protocol.Envelope{Text: "what day is it", Email: "a@b.com"}); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	readTurn(t, conn)

	instruction := streamer.LastInstruction()
	if !strings.Contains(instruction, "You are Friday") {
		t.Errorf("instruction missing persona: %q", instruction)
	}
	wantDay := time.Now().Format("Monday")
	if !strings.Contains(instruction, wantDay) {
		t.Errorf("instruction missing weekday %q: %q", wantDay, instruction)
	}
	if got := streamer.LastPrompt(); got != "what day is it" {
		t.Errorf("prompt %q, want the raw utterance", got)
	}
}

func TestSystemInstructionFormat(t *testing.T) {
	at := time.Date(2026, time.August, 28, 15, 4, 0, 0, time.UTC)
	got := SystemInstruction(at)
	if !strings.Contains(got, "Friday, August 28, 2026, 03:04 PM") {
		t.Errorf("unexpected date rendering: %q", got)
	}
}
