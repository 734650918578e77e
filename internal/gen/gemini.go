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
	"strings"

	"FridayChat/internal/backend"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiStreamer streams completions from the Gemini API using
// streamGenerateContent with SSE framing.
type GeminiStreamer struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiStreamer creates a streamer for the given model. baseURL may be
// empty to use the public endpoint.
func NewGeminiStreamer(apiKey, model, baseURL string, httpClient *http.Client, logger *slog.Logger) (*GeminiStreamer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiStreamer{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// StreamCompletion implements Streamer.
func (g *GeminiStreamer) StreamCompletion(ctx context.Context, instruction, prompt string) (*Stream, error) {
	reqBody := backend.GeminiRequest{
		SystemInstruction: &backend.GeminiContent{
			Parts: []backend.GeminiPart{{Text: instruction}},
		},
		Contents: []backend.GeminiContent{
			{Role: "user", Parts: []backend.GeminiPart{{Text: prompt}}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		var apiErr backend.GeminiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error: %s - %s", resp.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	s := newStream(resp.Body)
	go g.readEvents(s, resp.Body)
	return s, nil
}

// readEvents parses the SSE body, emitting candidate text from each data
// payload until the server ends the stream.
func (g *GeminiStreamer) readEvents(s *Stream, body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event backend.GeminiStreamResponse
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			s.finish(fmt.Errorf("failed to unmarshal stream event: %w", err))
			return
		}

		for _, cand := range event.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				if !s.emit(part.Text) {
					s.finish(nil)
					return
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.finish(fmt.Errorf("stream read failed: %w", err))
		return
	}
	s.finish(nil)
}
