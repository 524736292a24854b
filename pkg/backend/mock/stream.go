package mock

import (
	"sync"

	"github.com/pkravets/ghostline/pkg/backend"
)

// ManualStream is a [backend.Stream] whose events the test emits by hand.
// The events channel is buffered so tests can emit without a consumer.
type ManualStream struct {
	mu     sync.Mutex
	events chan backend.TokenEvent
	closed bool
}

var _ backend.Stream = (*ManualStream)(nil)

// NewManualStream creates an open manual stream.
func NewManualStream() *ManualStream {
	return &ManualStream{events: make(chan backend.TokenEvent, 64)}
}

// Emit delivers one token. Emitting on a closed stream is a no-op.
func (s *ManualStream) Emit(token string) {
	s.send(backend.TokenEvent{Token: token})
}

// Finish delivers the terminal Done event and closes the stream.
func (s *ManualStream) Finish() {
	s.send(backend.TokenEvent{Done: true})
	s.Close()
}

// Fail delivers a mid-stream error and closes the stream.
func (s *ManualStream) Fail(err error) {
	s.send(backend.TokenEvent{Err: err})
	s.Close()
}

func (s *ManualStream) send(ev backend.TokenEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Events implements backend.Stream.
func (s *ManualStream) Events() <-chan backend.TokenEvent {
	return s.events
}

// Close implements backend.Stream. Idempotent.
func (s *ManualStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closed reports whether the stream has been closed.
func (s *ManualStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
