// Package voice coordinates speech recognition and synthesis for the chat
// client. A single controller arbitrates push-to-talk, continuous wake-word
// listening and spoken replies so recognition is never active while the
// system is speaking.
package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// State is the controller's current mode.
type State int

const (
	Idle State = iota
	ListeningPushToTalk
	ListeningWakeWord
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ListeningPushToTalk:
		return "listening_push_to_talk"
	case ListeningWakeWord:
		return "listening_wake_word"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// ErrUnsupported is returned when the host platform exposes no speech
// capability. Controls degrade to disabled rather than failing downstream.
var ErrUnsupported = errors.New("speech capability not supported")

// Recognizer is one host speech-to-text facility. Implementations deliver
// final transcripts to Controller.HandleTranscript and signal the end of each
// recognition session via Controller.HandleRecognitionEnd.
type Recognizer interface {
	Start() error
	Stop()
}

// Synthesizer is the host text-to-speech facility. done must be invoked when
// the utterance finishes playing.
type Synthesizer interface {
	Speak(text string, done func()) error
	Cancel()
}

// Config tunes the controller. Zero values fall back to defaults.
type Config struct {
	Triggers     []string      // wake trigger phrases, longest variants first
	Ack          string        // spoken acknowledgement for a bare trigger
	SettleDelay  time.Duration // pause after synthesis before listening again
	RestartDelay time.Duration // pause before restarting ended wake listening
	// OnPrompt receives each recognized utterance to forward as a prompt.
	// voice is always true for recognized speech.
	OnPrompt func(text string, voice bool)
	// OnInterim receives in-progress recognition results for display. They
	// are never forwarded as prompts.
	OnInterim func(text string)
	Logger    *slog.Logger
}

var defaultTriggers = []string{"hey friday", "friday", "hey gemini"}

const (
	defaultAck          = "I'm listening."
	defaultSettleDelay  = 300 * time.Millisecond
	defaultRestartDelay = 250 * time.Millisecond
)

// Controller is the voice state machine. All mode flags live here, guarded by
// one mutex, rather than being captured by recognition callbacks.
type Controller struct {
	rec   Recognizer
	synth Synthesizer
	cfg   Config

	mu             sync.Mutex
	state          State
	wakeArmed      bool
	lastTranscript string
	restartTimer   *time.Timer
	settleTimer    *time.Timer
	speakGen       int  // increments per Speak; stale synthesis callbacks carry an old value
	pttDraining    bool // released push-to-talk session still flushing its final result
	closed         bool
}

// New creates a controller. rec and synth may be nil when the platform lacks
// the capability; the controller then reports unsupported instead of failing.
func New(rec Recognizer, synth Synthesizer, cfg Config) *Controller {
	if len(cfg.Triggers) == 0 {
		cfg.Triggers = defaultTriggers
	}
	if cfg.Ack == "" {
		cfg.Ack = defaultAck
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{rec: rec, synth: synth, cfg: cfg}
}

// Supported reports whether speech recognition is available.
func (c *Controller) Supported() bool {
	return c.rec != nil
}

// State returns the current mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WakeWordArmed reports whether continuous wake-word listening is enabled.
func (c *Controller) WakeWordArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeArmed
}

// LastTranscript returns the most recently recognized utterance.
func (c *Controller) LastTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTranscript
}

// StartPushToTalk begins a held-mic recognition session.
func (c *Controller) StartPushToTalk() error {
	if c.rec == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller is closed")
	}
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start push-to-talk while %s", state)
	}
	c.state = ListeningPushToTalk
	c.pttDraining = false
	c.mu.Unlock()

	if err := c.rec.Start(); err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		return fmt.Errorf("failed to start recognition: %w", err)
	}
	return nil
}

// StopPushToTalk releases the mic. Any final transcript still delivered for
// this session is forwarded as a prompt.
func (c *Controller) StopPushToTalk() {
	c.mu.Lock()
	if c.state != ListeningPushToTalk {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	// Host recognizers typically flush the final result after Stop; keep
	// accepting it until the recognition session reports its end.
	c.pttDraining = true
	c.mu.Unlock()
	c.rec.Stop()
}

// SetWakeWord arms or disarms continuous wake-word listening.
func (c *Controller) SetWakeWord(armed bool) error {
	if c.rec == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller is closed")
	}
	c.wakeArmed = armed

	if !armed {
		c.cancelTimersLocked()
		stop := c.state == ListeningWakeWord
		if stop {
			c.state = Idle
		}
		c.mu.Unlock()
		if stop {
			c.rec.Stop()
		}
		return nil
	}

	if c.state != Idle {
		// Speaking or push-to-talk in progress; listening resumes when the
		// current activity ends.
		c.mu.Unlock()
		return nil
	}
	c.state = ListeningWakeWord
	c.mu.Unlock()

	if err := c.rec.Start(); err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		return fmt.Errorf("failed to start recognition: %w", err)
	}
	return nil
}

// HandleTranscript receives one final transcript from the recognizer.
// Utterances recognized while speaking are discarded; wake-word mode only
// forwards utterances containing a trigger phrase.
func (c *Controller) HandleTranscript(raw string) {
	transcript := normalize(raw)
	if transcript == "" {
		return
	}

	c.mu.Lock()
	if c.closed || c.state == Speaking {
		c.mu.Unlock()
		return
	}
	c.lastTranscript = transcript
	state := c.state
	if state == Idle && c.pttDraining {
		// Final result of a released push-to-talk session arriving after
		// Stop; it is still this session's utterance.
		c.pttDraining = false
		state = ListeningPushToTalk
	}
	if state == ListeningPushToTalk {
		c.state = Idle
	}
	c.mu.Unlock()

	switch state {
	case ListeningWakeWord:
		cmd, triggered := c.extractCommand(transcript)
		if !triggered {
			return
		}
		if cmd == "" {
			// Bare trigger: acknowledge without a model call.
			if err := c.Speak(c.cfg.Ack); err != nil {
				c.cfg.Logger.Warn("failed to speak acknowledgement", "error", err)
			}
			return
		}
		if c.cfg.OnPrompt != nil {
			c.cfg.OnPrompt(cmd, true)
		}

	case ListeningPushToTalk:
		if c.cfg.OnPrompt != nil {
			c.cfg.OnPrompt(transcript, true)
		}
	}
}

// HandleInterim receives one in-progress recognition result. Interim results
// are display-only; nothing is forwarded while speaking.
func (c *Controller) HandleInterim(raw string) {
	c.mu.Lock()
	listening := !c.closed && (c.state == ListeningPushToTalk || c.state == ListeningWakeWord)
	c.mu.Unlock()

	if listening && c.cfg.OnInterim != nil {
		c.cfg.OnInterim(raw)
	}
}

// HandleRecognitionEnd receives the end of one recognition session. Wake-word
// listening restarts itself after a short delay while still armed, which is
// what keeps "always listening" alive across recognition session ends.
func (c *Controller) HandleRecognitionEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pttDraining = false

	switch c.state {
	case ListeningPushToTalk, Idle:
		c.state = Idle
		if c.wakeArmed {
			// Armed during push-to-talk; continuous listening takes over now.
			c.state = ListeningWakeWord
			c.scheduleRestartLocked()
		}
	case ListeningWakeWord:
		if !c.wakeArmed {
			c.state = Idle
			return
		}
		c.scheduleRestartLocked()
	}
}

func (c *Controller) scheduleRestartLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartTimer = time.AfterFunc(c.cfg.RestartDelay, c.restartWakeListening)
}

// restartWakeListening resumes continuous listening if still wanted.
func (c *Controller) restartWakeListening() {
	c.mu.Lock()
	if c.closed || !c.wakeArmed || c.state != ListeningWakeWord {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.rec.Start(); err != nil {
		c.cfg.Logger.Warn("failed to restart wake-word recognition", "error", err)
	}
}

// Speak voices text. Recognition is stopped before synthesis starts so the
// system never transcribes its own output.
func (c *Controller) Speak(text string) error {
	if c.synth == nil {
		return ErrUnsupported
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller is closed")
	}
	c.cancelTimersLocked()
	wasListening := c.state == ListeningPushToTalk || c.state == ListeningWakeWord
	c.state = Speaking
	c.pttDraining = false
	c.speakGen++
	gen := c.speakGen
	c.mu.Unlock()

	if wasListening && c.rec != nil {
		c.rec.Stop()
	}
	c.synth.Cancel()

	// A canceled utterance's host binding can still fire its end callback;
	// the generation tag lets handleSynthesisEnd drop those.
	if err := c.synth.Speak(text, func() { c.handleSynthesisEnd(gen) }); err != nil {
		c.mu.Lock()
		if gen == c.speakGen {
			c.state = Idle
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to start synthesis: %w", err)
	}
	return nil
}

// handleSynthesisEnd runs when an utterance finishes playing. Listening
// resumes after a settle delay so the synthesis tail is not captured. Stale
// callbacks from utterances replaced by a later Speak are ignored.
func (c *Controller) handleSynthesisEnd(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.speakGen || c.state != Speaking {
		return
	}
	c.state = Idle
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	c.settleTimer = time.AfterFunc(c.cfg.SettleDelay, c.afterSettle)
}

// afterSettle returns to wake-word listening if still armed.
func (c *Controller) afterSettle() {
	c.mu.Lock()
	if c.closed || !c.wakeArmed || c.state != Idle {
		c.mu.Unlock()
		return
	}
	c.state = ListeningWakeWord
	c.mu.Unlock()

	if err := c.rec.Start(); err != nil {
		c.cfg.Logger.Warn("failed to resume wake-word recognition", "error", err)
	}
}

// Close stops all activity: pending timers, recognition and synthesis. No
// callbacks fire after Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelTimersLocked()
	wasListening := c.state == ListeningPushToTalk || c.state == ListeningWakeWord
	speaking := c.state == Speaking
	c.state = Idle
	c.wakeArmed = false
	c.pttDraining = false
	c.mu.Unlock()

	if wasListening && c.rec != nil {
		c.rec.Stop()
	}
	if speaking && c.synth != nil {
		c.synth.Cancel()
	}
}

func (c *Controller) cancelTimersLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

// extractCommand strips the first matching trigger phrases from a normalized
// transcript, returning the remaining command and whether any trigger was
// present at all.
func (c *Controller) extractCommand(transcript string) (string, bool) {
	triggered := false
	for _, trigger := range c.cfg.Triggers {
		if strings.Contains(transcript, trigger) {
			triggered = true
		}
	}
	if !triggered {
		return "", false
	}
	cmd := transcript
	for _, trigger := range c.cfg.Triggers {
		cmd = strings.ReplaceAll(cmd, trigger, "")
	}
	return strings.Join(strings.Fields(cmd), " "), true
}

// normalize lowercases a transcript and drops the punctuation recognizers
// tend to insert, so trigger matching is case- and punctuation-insensitive.
func normalize(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?':
			return -1
		}
		return r
	}, lower)
	return strings.Join(strings.Fields(cleaned), " ")
}
