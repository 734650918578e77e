package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"FridayChat/internal/config"
	"FridayChat/internal/gateway"
	"FridayChat/internal/gen"
	"FridayChat/internal/store"
	"FridayChat/internal/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	var cfg config.Config

	flag.StringVar(&cfg.Addr, "addr", ":3000", "HTTP and WebSocket listen address")
	flag.StringVar(&cfg.DBPath, "db", "friday.db", "SQLite database file")
	flag.StringVar(&cfg.Backend, "backend", config.BackendGemini, "generation backend (gemini|ollama)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.GeminiModel, "gemini-model", "gemini-2.0-flash", "Gemini model name")
	flag.StringVar(&cfg.OllamaModel, "ollama-model", "llama3:latest", "Ollama model specification (format: model:version)")
	flag.StringVar(&cfg.OllamaURL, "ollama-url", "", "Ollama server base URL (default http://localhost:11434)")
	flag.DurationVar(&cfg.StreamTimeout, "stream-timeout", config.DefaultStreamTimeout, "Deadline for a single generation turn")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()
	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	httpClient := &http.Client{Timeout: cfg.StreamTimeout + 10*time.Second}

	var streamer gen.Streamer
	switch cfg.Backend {
	case config.BackendGemini:
		streamer, err = gen.NewGeminiStreamer(cfg.GeminiKey, cfg.GeminiModel, "", httpClient, logger)
		if err != nil {
			return err
		}
	case config.BackendOllama:
		streamer = gen.NewOllamaStreamer(cfg.OllamaModel, cfg.OllamaURL, httpClient, logger)
	default:
		return fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	g := gateway.New(st, streamer, logger, tracer, meter, cfg.StreamTimeout)

	logger.Info("starting server", "addr", cfg.Addr, "backend", cfg.Backend)
	fmt.Printf("fridayd listening on %s (backend: %s)\n", cfg.Addr, cfg.Backend)

	return http.ListenAndServe(cfg.Addr, g.Router())
}
