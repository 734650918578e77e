package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"FridayChat/internal/session"
	"FridayChat/internal/store"

	"github.com/gorilla/mux"
)

// Router returns the HTTP surface: the WebSocket endpoint plus the REST
// routes for session listing, history fetch and deletion.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/ws", g.HandleWS)
	r.HandleFunc("/api/sessions/{email}", g.handleListSessions).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/chat/{id}", g.handleGetChat).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/sessions/{id}", g.handleDeleteSession).Methods("DELETE", "OPTIONS")
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(mux.Vars(r)["email"]))

	sessions, err := g.store.ListSessions(email)
	if err != nil {
		g.logger.Error("failed to list sessions", "email", email, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (g *Gateway) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	messages, err := g.store.GetMessages(id)
	if errors.Is(err, store.ErrNotFound) {
		// An unknown id yields an empty history rather than an error; a
		// client reloading a deleted session just sees an empty pane.
		writeJSON(w, http.StatusOK, []session.Message{})
		return
	}
	if err != nil {
		g.logger.Error("failed to fetch chat", "session_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch chat")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := g.store.DeleteSession(id); err != nil {
		g.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	g.logger.Info("session deleted", "session_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
