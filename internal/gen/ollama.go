package gen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"FridayChat/internal/backend"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaStreamer streams completions from a local Ollama server via the chat
// endpoint with stream enabled (newline-delimited JSON).
type OllamaStreamer struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaStreamer creates a streamer for the given model specification
// (format "model:version"). baseURL may be empty to use localhost.
func NewOllamaStreamer(model, baseURL string, httpClient *http.Client, logger *slog.Logger) *OllamaStreamer {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaStreamer{
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// StreamCompletion implements Streamer. The system instruction is carried as
// a leading system-role message.
func (o *OllamaStreamer) StreamCompletion(ctx context.Context, instruction, prompt string) (*Stream, error) {
	reqBody := backend.OllamaRequest{
		Model: o.model,
		Messages: []map[string]string{
			{"role": "system", "content": instruction},
			{"role": "user", "content": prompt},
		},
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	s := newStream(resp.Body)
	go o.readLines(s, resp.Body)
	return s, nil
}

// readLines parses the NDJSON body, emitting message content from each line
// until the server reports done.
func (o *OllamaStreamer) readLines(s *Stream, body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var event backend.OllamaStreamResponse
		if err := json.Unmarshal(line, &event); err != nil {
			s.finish(fmt.Errorf("failed to unmarshal stream event: %w", err))
			return
		}
		if event.Error != "" {
			s.finish(fmt.Errorf("ollama error: %s", event.Error))
			return
		}

		if event.Message.Content != "" {
			if !s.emit(event.Message.Content) {
				s.finish(nil)
				return
			}
		}
		if event.Done {
			s.finish(nil)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.finish(fmt.Errorf("stream read failed: %w", err))
		return
	}
	s.finish(nil)
}
