package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"FridayChat/internal/client"
	"FridayChat/internal/telemetry"
	"FridayChat/internal/voice"
)

func main() {
	var serverURL string
	var email string

	flag.StringVar(&serverURL, "server", "http://localhost:3000", "Server base URL")
	flag.StringVar(&email, "email", "", "Account email for session ownership")
	flag.Parse()

	if email == "" {
		fmt.Fprintln(os.Stderr, "Error: -email is required")
		os.Exit(1)
	}

	if err := run(serverURL, email); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, email string) error {
	logger, err := telemetry.InitLogger(false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws"
	api := &client.API{BaseURL: serverURL}

	done := make(chan struct{}, 1)
	handlers := client.Handlers{
		OnSessionCreated: func(id string) {
			logger.Info("session created", "session_id", id)
		},
		OnChunk: func(text string) {
			fmt.Print(text)
		},
		OnTurnDone: func(final string, speak bool) {
			fmt.Println()
			done <- struct{}{}
		},
		OnError: func(msg string) {
			fmt.Printf("\nError: %s\n", msg)
			done <- struct{}{}
		},
	}

	c, err := client.Dial(wsURL, email, handlers, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	go func() {
		if err := c.Listen(); err != nil {
			fmt.Fprintf(os.Stderr, "\nConnection lost: %v\n", err)
			os.Exit(1)
		}
	}()

	// A terminal has no speech platform; the controller runs in its
	// unsupported mode so voice commands report their status instead of
	// failing.
	vc := voice.New(nil, nil, voice.Config{Logger: logger})
	defer vc.Close()

	fmt.Println("=== Friday Chat ===")
	fmt.Printf("Server: %s\n", serverURL)
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(input, c, api, vc, email)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		fmt.Print("Friday: ")
		if err := c.Send(input, false); err != nil {
			fmt.Printf("\nError: %v\n", err)
			continue
		}
		<-done
		fmt.Println()
	}

	fmt.Println("Goodbye!")
	return nil
}

func handleCommand(cmd string, c *client.Client, api *client.API, vc *voice.Controller, email string) (bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		c.NewConversation()
		fmt.Println("Started a new conversation")
		return false, nil

	case "/sessions":
		sessions, err := api.ListSessions(email)
		if err != nil {
			return false, fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No chats yet")
			return false, nil
		}
		fmt.Println("\nHistory:")
		for i, s := range sessions {
			fmt.Printf("%d. %s  %s  (%s)\n", i+1, s.ID, s.Title, s.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
		return false, nil

	case "/load":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /load <session-id>")
		}
		messages, err := api.GetHistory(parts[1])
		if err != nil {
			return false, fmt.Errorf("failed to load session: %w", err)
		}
		c.LoadSession(parts[1], messages)
		for _, m := range messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Text)
		}
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <session-id>")
		}
		if err := api.DeleteSession(parts[1]); err != nil {
			return false, fmt.Errorf("failed to delete session: %w", err)
		}
		if c.SessionID() == parts[1] {
			c.NewConversation()
		}
		fmt.Println("Deleted", parts[1])
		return false, nil

	case "/wake":
		if err := vc.SetWakeWord(!vc.WakeWordArmed()); err != nil {
			if errors.Is(err, voice.ErrUnsupported) {
				fmt.Println("Speech not supported on this platform")
				return false, nil
			}
			return false, err
		}
		fmt.Println("Wake word armed:", vc.WakeWordArmed())
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit        - Exit the client")
		fmt.Println("  /new                - Start a new conversation")
		fmt.Println("  /sessions           - List saved sessions")
		fmt.Println("  /load <id>          - Load a saved session")
		fmt.Println("  /delete <id>        - Delete a saved session")
		fmt.Println("  /wake               - Toggle wake-word listening")
		fmt.Println("  /help               - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}
