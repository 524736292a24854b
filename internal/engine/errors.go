package engine

import (
	"errors"

	"github.com/pkravets/ghostline/internal/engine/edit"
	"github.com/pkravets/ghostline/internal/surface"
	"github.com/pkravets/ghostline/pkg/backend"
)

// Class buckets every failure the engine can encounter. LocalValidation and
// StaleResult never reach the user; the other classes surface a short message
// through the presentation layer. No class crashes the engine or leaves a
// surface partially mutated.
type Class string

const (
	// ClassLocalValidation covers empty selections and blank instructions.
	// Recoverable; no request was issued.
	ClassLocalValidation Class = "local_validation"

	// ClassTransport covers connection failures and timeouts against the
	// assistant service.
	ClassTransport Class = "transport"

	// ClassProtocol covers malformed frames and responses.
	ClassProtocol Class = "protocol"

	// ClassStale covers results whose generation or session no longer
	// matches. Silently discarded.
	ClassStale Class = "stale"

	// ClassApply covers anchors that no longer resolve at apply time. The
	// original content is guaranteed untouched.
	ClassApply Class = "apply"
)

var (
	// ErrStale marks an async result that belongs to a superseded
	// generation.
	ErrStale = errors.New("engine: stale result")

	// ErrNoSurface is returned when an operation names a surface that was
	// never attached or has been detached from the engine.
	ErrNoSurface = errors.New("engine: unknown surface")

	// ErrNoSession is returned when an edit operation runs without an
	// active session.
	ErrNoSession = errors.New("engine: no active edit session")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine: closed")
)

// Classify maps an error to its taxonomy class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, edit.ErrNoSelection),
		errors.Is(err, edit.ErrEmptyInstruction),
		errors.Is(err, ErrNoSession):
		return ClassLocalValidation
	case errors.Is(err, ErrStale),
		errors.Is(err, edit.ErrNotSubmitted),
		errors.Is(err, edit.ErrNotCaptured):
		return ClassStale
	case errors.Is(err, surface.ErrRange),
		errors.Is(err, surface.ErrDetached),
		errors.Is(err, surface.ErrAnchorKind),
		errors.Is(err, edit.ErrStaleCapture):
		return ClassApply
	case backend.IsProtocol(err):
		return ClassProtocol
	default:
		return ClassTransport
	}
}
