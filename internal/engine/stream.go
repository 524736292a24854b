package engine

import (
	"context"
	"strings"
	"time"
)

// StreamState is the lifecycle state of a suggestion stream.
type StreamState string

const (
	// StreamOpening means the transport connection is being established; no
	// token has arrived yet. This is the only state in which the single-shot
	// completion fallback may run.
	StreamOpening StreamState = "opening"

	// StreamStreaming means tokens are arriving. At most one stream per
	// surface may be in this state.
	StreamStreaming StreamState = "streaming"

	// StreamCompleted means the terminal frame arrived (or the fallback
	// produced a full completion). The accumulated text stays presentable
	// until accepted or rejected.
	StreamCompleted StreamState = "completed"

	// StreamCancelled means the stream was invalidated by new input, focus
	// loss, hidden visibility, or an explicit accept/reject.
	StreamCancelled StreamState = "cancelled"

	// StreamErrored means the stream failed after establishment, or the
	// fallback failed too. No retry is attempted.
	StreamErrored StreamState = "errored"
)

// Terminal reports whether s is a terminal state. A stream's terminal
// transition is final: no further tokens are processed afterwards even if
// buffered.
func (s StreamState) Terminal() bool {
	switch s {
	case StreamCompleted, StreamCancelled, StreamErrored:
		return true
	}
	return false
}

// stream accumulates one suggestion stream. All fields are confined to the
// engine's scheduler thread; the generation is carried in every async
// closure so late callbacks identify themselves instead of reading shared
// mutable state.
type stream struct {
	generation uint64
	state      StreamState

	// accumulated is the ordered concatenation of received tokens.
	accumulated strings.Builder

	// anchorCaret is the caret offset recorded when the stream opened; the
	// visible suggestion is anchored there.
	anchorCaret int

	// baseRevision is the surface revision at open time, used to detect
	// host-side drift before accepting.
	baseRevision uint64

	// prefix is the text before the caret at open time, kept for feedback
	// context.
	prefix string

	openedAt     time.Time
	cancel       context.CancelFunc
	gotToken     bool
	fellBack     bool
	flushArmed   bool
	firstByte    Timer
	idle         Timer
}

// append adds a token in arrival order.
func (s *stream) append(token string) {
	s.accumulated.WriteString(token)
	s.gotToken = true
}

// text returns the accumulated suggestion text.
func (s *stream) text() string { return s.accumulated.String() }

// stopTimers stops the first-byte and idle watchdogs.
func (s *stream) stopTimers() {
	if s.firstByte != nil {
		s.firstByte.Stop()
		s.firstByte = nil
	}
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
}

// finish moves the stream to a terminal state, stops its watchdogs, and
// cancels its transport context. finish on an already-terminal stream keeps
// the first terminal state.
func (s *stream) finish(state StreamState) {
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.stopTimers()
	if s.cancel != nil {
		s.cancel()
	}
}
