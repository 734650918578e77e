package gen

import (
	"context"
	"sync"
)

// FakeStreamer replays a scripted sequence of chunks, optionally failing
// after them. It backs gateway and client tests that need a deterministic
// generation backend.
type FakeStreamer struct {
	Chunks   []string
	FailWith error // delivered through Stream.Err after the chunks
	StartErr error // returned from StreamCompletion itself

	mu              sync.Mutex
	lastInstruction string
	lastPrompt      string
}

// LastInstruction returns the instruction of the most recent call.
func (f *FakeStreamer) LastInstruction() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInstruction
}

// LastPrompt returns the prompt of the most recent call.
func (f *FakeStreamer) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

// StreamCompletion implements Streamer.
func (f *FakeStreamer) StreamCompletion(ctx context.Context, instruction, prompt string) (*Stream, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	f.mu.Lock()
	f.lastInstruction = instruction
	f.lastPrompt = prompt
	f.mu.Unlock()

	s := newStream(nil)
	go func() {
		for _, text := range f.Chunks {
			select {
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			default:
			}
			if !s.emit(text) {
				s.finish(nil)
				return
			}
		}
		s.finish(f.FailWith)
	}()
	return s, nil
}
