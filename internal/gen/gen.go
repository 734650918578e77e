package gen

import (
	"context"
	"io"
	"sync/atomic"
)

// Streamer produces an assistant reply as a lazy, finite sequence of text
// fragments. The sequence is not restartable; a failed stream is surfaced
// through Stream.Err and the partial output must be discarded by the caller.
type Streamer interface {
	// StreamCompletion starts one generation turn. instruction is fixed
	// system context supplied alongside the user's prompt on every call.
	StreamCompletion(ctx context.Context, instruction, prompt string) (*Stream, error)
}

// Stream wraps one in-flight generation. Chunks are read from Chunks until it
// closes; Err then reports whether the stream completed or failed.
type Stream struct {
	chunks chan string
	done   chan struct{}
	closed atomic.Bool
	body   io.Closer
	err    error
}

func newStream(body io.Closer) *Stream {
	return &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		body:   body,
	}
}

// Chunks returns the channel of text fragments. It is closed when the stream
// completes, fails, or is closed by the consumer.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err returns the terminal error of the stream, nil on clean completion.
// Only valid once Chunks has been closed.
func (s *Stream) Err() error {
	return s.err
}

// Close abandons the stream and releases the underlying connection. Safe to
// call concurrently with an in-flight read; pending chunks are dropped.
func (s *Stream) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
		if s.body != nil {
			return s.body.Close()
		}
	}
	return nil
}

// emit delivers one fragment to the consumer. It reports false once the
// consumer has closed the stream.
func (s *Stream) emit(text string) bool {
	select {
	case s.chunks <- text:
		return true
	case <-s.done:
		return false
	}
}

// finish records the terminal state and closes the chunk channel.
func (s *Stream) finish(err error) {
	s.err = err
	close(s.chunks)
}
