// Package surface models the editable text regions ghostline augments.
//
// A Surface is not owned by the engine: it wraps a host-controlled editable
// region (a plain input field or a rich structured region) and may be detached
// by the host at any time. The engine therefore treats every surface
// operation as fallible and tolerates ErrDetached wherever it reads or
// writes.
//
// Surfaces are modelled as a capability set {read, write, observe} rather
// than an inheritance hierarchy, so new surface kinds can be added without
// touching the request coordinator.
package surface

import "errors"

// Kind identifies the flavour of editable region behind a Surface.
type Kind string

const (
	// KindLinearField is a plain linear text buffer addressed by rune
	// offsets, such as an input or textarea field.
	KindLinearField Kind = "linear_field"

	// KindRichRegion is a structured region composed of text runs with
	// stable node identities, such as a contenteditable document fragment.
	KindRichRegion Kind = "rich_region"
)

// IsValid reports whether k is a recognised surface kind.
func (k Kind) IsValid() bool {
	return k == KindLinearField || k == KindRichRegion
}

var (
	// ErrDetached is returned by every operation on a surface whose backing
	// region has been removed by the host.
	ErrDetached = errors.New("surface: detached")

	// ErrRange is returned when an offset or anchor does not resolve against
	// the surface's current content.
	ErrRange = errors.New("surface: range not resolvable")

	// ErrAnchorKind is returned when an anchor of the wrong kind is applied
	// to a surface.
	ErrAnchorKind = errors.New("surface: anchor kind mismatch")
)

// Reader exposes the observable state of a surface. All offsets are rune
// offsets into the linearised text.
type Reader interface {
	// Text returns the full linearised text of the surface.
	Text() (string, error)

	// Caret returns the current caret offset.
	Caret() (int, error)

	// Selection returns the current selection as a half-open [start, end)
	// range. A collapsed selection has start == end == caret.
	Selection() (start, end int, err error)

	// Revision returns a counter that increases on every content mutation,
	// regardless of who performed it. The engine records revisions to detect
	// host-side drift.
	Revision() (uint64, error)
}

// Writer mutates a surface. The engine is the sole writer during accept and
// apply; host mutations happen outside this interface and are visible only
// through Revision drift.
type Writer interface {
	// InsertAt splices text at the given rune offset and returns nothing on
	// success. The caret is not moved; callers position it explicitly.
	InsertAt(offset int, text string) error

	// Replace resolves anchor against the surface and replaces its span with
	// text as a single all-or-nothing operation. On success the selection is
	// collapsed to the end of the inserted text and the caret placed there.
	Replace(anchor Anchor, text string) error

	// SetCaret moves the caret to the given rune offset, collapsing any
	// selection.
	SetCaret(offset int) error
}

// Observer registers host-side listeners. Callbacks fire synchronously on the
// mutating call; hosts that need decoupling wrap them themselves.
type Observer interface {
	// OnChanged registers a listener invoked after every content mutation,
	// including mutations performed by the engine (accept, apply).
	OnChanged(fn func())

	// OnGeometry registers a listener invoked when the surface geometry
	// changes without a content change (resize, scroll, reflow). The engine
	// re-projects suggestion overlays on these events without re-querying
	// the backend.
	OnGeometry(fn func())
}

// Surface is one editable region. Implementations must tolerate being
// detached mid-flight: after Detach every Reader and Writer call returns
// ErrDetached.
type Surface interface {
	// ID returns a stable identifier for this surface within the process.
	ID() string

	// Kind returns the surface flavour, which determines how selections are
	// captured into anchors.
	Kind() Kind

	Reader
	Writer
	Observer
}
