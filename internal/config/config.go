package config

import "time"

const (
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

// DefaultStreamTimeout bounds a single generation turn. The provider call has
// no deadline of its own, so without this a stalled stream would hang the
// connection's turn loop.
const DefaultStreamTimeout = 2 * time.Minute

// Config holds application configuration
type Config struct {
	Addr    string // HTTP + WebSocket listen address
	DBPath  string // SQLite database file
	Backend string // generation backend (gemini|ollama)
	Debug   bool

	GeminiModel string // e.g. "gemini-2.0-flash"
	GeminiKey   string // API key, normally loaded from .env
	OllamaModel string // Model specification in format "model:version" (e.g., "llama3:latest")
	OllamaURL   string // Ollama server base URL

	StreamTimeout time.Duration // per-turn deadline for one generation stream
}
