package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"FridayChat/internal/session"
)

// API is a thin client for the gateway's REST surface: session listing,
// history fetch and deletion.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (a *API) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a *API) get(path string, out interface{}) error {
	resp, err := a.client().Get(a.BaseURL + path)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// ListSessions fetches the session summaries for an email, newest first.
func (a *API) ListSessions(email string) ([]session.Summary, error) {
	var sessions []session.Summary
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.get("/api/sessions/"+url.PathEscape(email), &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetHistory fetches a session's messages.
func (a *API) GetHistory(sessionID string) ([]session.Message, error) {
	var messages []session.Message
	if err := a.get("/api/chat/"+url.PathEscape(sessionID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteSession removes a session by id.
func (a *API) DeleteSession(sessionID string) error {
	req, err := http.NewRequest("DELETE", a.BaseURL+"/api/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return nil
}
