package gateway

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"FridayChat/internal/gen"
	"FridayChat/internal/session"
	"FridayChat/internal/store"
)

func seedSession(t *testing.T, st *store.Store, email, text string) string {
	t.Helper()
	id, err := st.CreateSession(email, "", session.TitleFromText(text), session.Message{
		Role:      session.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return id
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestListSessionsEndpoint(t *testing.T) {
	srv, st := newTestGateway(t, &gen.FakeStreamer{})
	seedSession(t, st, "a@b.com", "first chat")
	seedSession(t, st, "other@b.com", "not mine")

	var sessions []session.Summary
	resp := getJSON(t, srv.URL+"/api/sessions/a@b.com", &sessions)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Title != "first chat..." {
		t.Errorf("unexpected title %q", sessions[0].Title)
	}
}

func TestListSessionsNormalizesEmail(t *testing.T) {
	srv, st := newTestGateway(t, &gen.FakeStreamer{})
	seedSession(t, st, "a@b.com", "hello")

	var sessions []session.Summary
	getJSON(t, srv.URL+"/api/sessions/A@B.COM", &sessions)
	if len(sessions) != 1 {
		t.Fatalf("expected case-insensitive email match, got %d sessions", len(sessions))
	}
}

func TestGetChatEndpoint(t *testing.T) {
	srv, st := newTestGateway(t, &gen.FakeStreamer{})
	id := seedSession(t, st, "a@b.com", "hello")

	var messages []session.Message
	resp := getJSON(t, srv.URL+"/api/chat/"+id, &messages)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(messages) != 1 || messages[0].Text != "hello" {
		t.Fatalf("unexpected history %+v", messages)
	}
}

func TestGetChatUnknownIDReturnsEmpty(t *testing.T) {
	srv, _ := newTestGateway(t, &gen.FakeStreamer{})

	var messages []session.Message
	resp := getJSON(t, srv.URL+"/api/chat/does-not-exist", &messages)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %+v", messages)
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	srv, st := newTestGateway(t, &gen.FakeStreamer{})
	id := seedSession(t, st, "a@b.com", "doomed")

	req, _ := http.NewRequest("DELETE", srv.URL+"/api/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var sessions []session.Summary
	getJSON(t, srv.URL+"/api/sessions/a@b.com", &sessions)
	if len(sessions) != 0 {
		t.Fatalf("deleted session still listed: %+v", sessions)
	}

	// History of the deleted session reads as empty.
	var messages []session.Message
	getJSON(t, srv.URL+"/api/chat/"+id, &messages)
	if len(messages) != 0 {
		t.Fatalf("expected empty history after delete, got %+v", messages)
	}
}
