// Package edit implements selection capture and the edit-session state
// machine.
//
// A Session carries a captured selection and a natural-language instruction
// from the moment of user intent to exactly one terminal outcome. The package
// is deliberately free of scheduling and transport concerns: Sessions are
// plain state machines driven by the engine's run loop, so every transition
// is unit-testable without a host document or a live backend.
package edit

import (
	"errors"
	"fmt"

	"github.com/pkravets/ghostline/internal/surface"
	"github.com/pkravets/ghostline/pkg/backend"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	// StatusCaptured means the selection is snapshotted and awaiting an
	// instruction.
	StatusCaptured Status = "captured"

	// StatusSubmitted means an edit request is in flight.
	StatusSubmitted Status = "submitted"

	// StatusApplied means the replacement was written to the surface.
	// Reachable exactly once, only from StatusSubmitted.
	StatusApplied Status = "applied"

	// StatusCancelled means the session was abandoned before a result was
	// applied. Responses arriving afterwards are ignored.
	StatusCancelled Status = "cancelled"

	// StatusFailed means the request or the apply failed. The original
	// surface content is guaranteed untouched.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApplied, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

var (
	// ErrNoSelection is returned by Capture when the surface selection is
	// empty. Local and recoverable; no request is issued.
	ErrNoSelection = errors.New("edit: no selection")

	// ErrEmptyInstruction is returned by Begin for a blank instruction. The
	// session stays Captured and no request is issued.
	ErrEmptyInstruction = errors.New("edit: empty instruction")

	// ErrNotCaptured is returned by Begin when the session already left the
	// Captured state.
	ErrNotCaptured = errors.New("edit: session not in captured state")

	// ErrNotSubmitted is returned by Apply and Fail when the session is not
	// in the Submitted state. Callers treat it as a stale, harmless result.
	ErrNotSubmitted = errors.New("edit: session not in submitted state")

	// ErrStaleCapture is returned by Apply when the surface was mutated
	// after the selection was captured. The surface is left untouched.
	ErrStaleCapture = errors.New("edit: surface changed since capture")
)

// Session is the lifecycle object for one capture-to-apply edit request.
// Sessions are not safe for concurrent use; the engine confines them to its
// run loop.
type Session struct {
	surf        surface.Surface
	anchor      surface.Anchor
	original    string
	revision    uint64
	instruction string
	status      Status
	result      *backend.EditResult
	failure     error
}

// Capture snapshots the current selection of surf into a new Session.
//
// An empty selection fails with ErrNoSelection. Linear fields are captured as
// offset pairs; any other surface must implement [surface.RangeCloner] and is
// captured as a cloned, structurally independent range snapshot. The capture
// is taken once and never re-derived from the surface.
//
// Capture is idempotent in effect: callers replace any previous uncommitted
// session with the returned one.
func Capture(surf surface.Surface) (*Session, error) {
	start, end, err := surf.Selection()
	if err != nil {
		return nil, fmt.Errorf("edit: read selection: %w", err)
	}
	if start == end {
		return nil, ErrNoSelection
	}

	text, err := surf.Text()
	if err != nil {
		return nil, fmt.Errorf("edit: read text: %w", err)
	}
	runes := []rune(text)
	if end > len(runes) {
		return nil, fmt.Errorf("edit: selection [%d,%d) outside text length %d: %w",
			start, end, len(runes), surface.ErrRange)
	}
	original := string(runes[start:end])

	rev, err := surf.Revision()
	if err != nil {
		return nil, fmt.Errorf("edit: read revision: %w", err)
	}

	var anchor surface.Anchor
	if surf.Kind() == surface.KindLinearField {
		anchor = surface.FieldAnchor{Start: start, End: end}
	} else {
		cloner, ok := surf.(surface.RangeCloner)
		if !ok {
			return nil, fmt.Errorf("edit: surface kind %q does not support range capture", surf.Kind())
		}
		ra, err := cloner.CloneSelectionRange()
		if err != nil {
			return nil, fmt.Errorf("edit: clone selection range: %w", err)
		}
		anchor = ra
	}

	return &Session{
		surf:     surf,
		anchor:   anchor,
		original: original,
		revision: rev,
		status:   StatusCaptured,
	}, nil
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status { return s.status }

// OriginalText returns the captured selection text.
func (s *Session) OriginalText() string { return s.original }

// Instruction returns the submitted instruction, empty until Begin succeeds.
func (s *Session) Instruction() string { return s.instruction }

// Anchor returns the captured anchor.
func (s *Session) Anchor() surface.Anchor { return s.anchor }

// Result returns the backend edit result once applied, nil otherwise.
func (s *Session) Result() *backend.EditResult { return s.result }

// Failure returns the error that moved the session to Failed, nil otherwise.
func (s *Session) Failure() error { return s.failure }

// Begin transitions Captured → Submitted with the given instruction.
// A blank instruction is a no-op signalled by ErrEmptyInstruction: the
// session stays Captured and the caller must not issue a request.
func (s *Session) Begin(instruction string) error {
	if s.status != StatusCaptured {
		return fmt.Errorf("%w: status %s", ErrNotCaptured, s.status)
	}
	if instruction == "" {
		return ErrEmptyInstruction
	}
	s.instruction = instruction
	s.status = StatusSubmitted
	return nil
}

// Apply writes the replacement to the surface at the captured anchor and
// transitions Submitted → Applied. The write is all-or-nothing: if the
// surface revision drifted since capture or the anchor no longer resolves,
// the surface is untouched and the session fails.
//
// Apply on a session that already left Submitted returns ErrNotSubmitted
// without touching the surface, which makes near-simultaneous duplicate
// success callbacks mutate the surface exactly once.
func (s *Session) Apply(result *backend.EditResult) error {
	if s.status != StatusSubmitted {
		return fmt.Errorf("%w: status %s", ErrNotSubmitted, s.status)
	}
	rev, err := s.surf.Revision()
	if err != nil {
		s.status = StatusFailed
		s.failure = err
		return fmt.Errorf("edit: read revision: %w", err)
	}
	if rev != s.revision {
		s.status = StatusFailed
		s.failure = ErrStaleCapture
		return ErrStaleCapture
	}
	if err := s.surf.Replace(s.anchor, result.ReplacementText); err != nil {
		s.status = StatusFailed
		s.failure = err
		return fmt.Errorf("edit: apply replacement: %w", err)
	}
	s.result = result
	s.status = StatusApplied
	return nil
}

// Cancel abandons the session. Cancelling a Submitted session means any
// response that still arrives is ignored, because the status already left
// Submitted. Cancel on a terminal session is a no-op.
func (s *Session) Cancel() {
	if s.status.Terminal() {
		return
	}
	s.status = StatusCancelled
}

// Fail transitions Submitted → Failed with the given cause. The original
// content is untouched. Fail on any other state returns ErrNotSubmitted so
// that late failures of already-cancelled sessions stay silent.
func (s *Session) Fail(cause error) error {
	if s.status != StatusSubmitted {
		return fmt.Errorf("%w: status %s", ErrNotSubmitted, s.status)
	}
	s.status = StatusFailed
	s.failure = cause
	return nil
}

// Snapshot is an immutable view of a session handed to the presentation
// layer.
type Snapshot struct {
	Status       Status
	OriginalText string
	Instruction  string
	Confidence   float64
	Alternatives []string
	Warning      string
	Err          error
}

// Snapshot returns the presentation view of the session's current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Status:       s.status,
		OriginalText: s.original,
		Instruction:  s.instruction,
		Err:          s.failure,
	}
	if s.result != nil {
		snap.Confidence = s.result.Confidence
		snap.Alternatives = s.result.Alternatives
		snap.Warning = s.result.Warning
	}
	return snap
}
