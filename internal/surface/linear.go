package surface

import (
	"fmt"
	"sync"
)

// LinearField is an in-memory Surface of kind [KindLinearField]: a rune
// buffer with a caret and a selection. It backs unit tests and the demo
// daemon; real hosts provide their own adapter over the same interface.
//
// All methods are safe for concurrent use.
type LinearField struct {
	mu        sync.Mutex
	id        string
	runes     []rune
	caret     int
	selStart  int
	selEnd    int
	revision  uint64
	detached  bool
	onChanged []func()
	onGeom    []func()
}

var _ Surface = (*LinearField)(nil)

// NewLinearField creates a linear field with the given initial text and the
// caret at the end.
func NewLinearField(id, text string) *LinearField {
	r := []rune(text)
	return &LinearField{
		id:       id,
		runes:    r,
		caret:    len(r),
		selStart: len(r),
		selEnd:   len(r),
	}
}

// ID implements Surface.
func (f *LinearField) ID() string { return f.id }

// Kind implements Surface.
func (f *LinearField) Kind() Kind { return KindLinearField }

// Text implements Reader.
func (f *LinearField) Text() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return "", ErrDetached
	}
	return string(f.runes), nil
}

// Caret implements Reader.
func (f *LinearField) Caret() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return 0, ErrDetached
	}
	return f.caret, nil
}

// Selection implements Reader.
func (f *LinearField) Selection() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return 0, 0, ErrDetached
	}
	return f.selStart, f.selEnd, nil
}

// Revision implements Reader.
func (f *LinearField) Revision() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return 0, ErrDetached
	}
	return f.revision, nil
}

// InsertAt implements Writer.
func (f *LinearField) InsertAt(offset int, text string) error {
	f.mu.Lock()
	if f.detached {
		f.mu.Unlock()
		return ErrDetached
	}
	if offset < 0 || offset > len(f.runes) {
		f.mu.Unlock()
		return fmt.Errorf("%w: insert offset %d, length %d", ErrRange, offset, len(f.runes))
	}
	ins := []rune(text)
	f.runes = append(f.runes[:offset:offset], append(ins, f.runes[offset:]...)...)
	f.revision++
	listeners := append([]func(){}, f.onChanged...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Replace implements Writer. Only FieldAnchor values are accepted; the span
// is spliced at the anchor's original offsets regardless of what the field
// contains now, provided the offsets still resolve.
func (f *LinearField) Replace(anchor Anchor, text string) error {
	fa, ok := anchor.(FieldAnchor)
	if !ok {
		return fmt.Errorf("%w: %T on linear field", ErrAnchorKind, anchor)
	}

	f.mu.Lock()
	if f.detached {
		f.mu.Unlock()
		return ErrDetached
	}
	if fa.Start < 0 || fa.End < fa.Start || fa.End > len(f.runes) {
		f.mu.Unlock()
		return fmt.Errorf("%w: span [%d,%d) against length %d", ErrRange, fa.Start, fa.End, len(f.runes))
	}
	ins := []rune(text)
	f.runes = append(f.runes[:fa.Start:fa.Start], append(ins, f.runes[fa.End:]...)...)
	end := fa.Start + len(ins)
	f.caret = end
	f.selStart, f.selEnd = end, end
	f.revision++
	listeners := append([]func(){}, f.onChanged...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// SetCaret implements Writer.
func (f *LinearField) SetCaret(offset int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return ErrDetached
	}
	if offset < 0 || offset > len(f.runes) {
		return fmt.Errorf("%w: caret offset %d, length %d", ErrRange, offset, len(f.runes))
	}
	f.caret = offset
	f.selStart, f.selEnd = offset, offset
	return nil
}

// Select sets the selection range and moves the caret to its end. Used by
// hosts (and tests) to simulate user selection.
func (f *LinearField) Select(start, end int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return ErrDetached
	}
	if start < 0 || end < start || end > len(f.runes) {
		return fmt.Errorf("%w: selection [%d,%d) against length %d", ErrRange, start, end, len(f.runes))
	}
	f.selStart, f.selEnd = start, end
	f.caret = end
	return nil
}

// Type simulates user input: it inserts text at the caret, advances the
// caret, and fires change listeners. Hosts feed the same event to the engine
// via its SurfaceChanged entry point.
func (f *LinearField) Type(text string) error {
	f.mu.Lock()
	if f.detached {
		f.mu.Unlock()
		return ErrDetached
	}
	ins := []rune(text)
	at := f.caret
	f.runes = append(f.runes[:at:at], append(ins, f.runes[at:]...)...)
	f.caret = at + len(ins)
	f.selStart, f.selEnd = f.caret, f.caret
	f.revision++
	listeners := append([]func(){}, f.onChanged...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnChanged implements Observer.
func (f *LinearField) OnChanged(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChanged = append(f.onChanged, fn)
}

// OnGeometry implements Observer.
func (f *LinearField) OnGeometry(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onGeom = append(f.onGeom, fn)
}

// NotifyGeometry fires geometry listeners. Hosts call this on reflow.
func (f *LinearField) NotifyGeometry() {
	f.mu.Lock()
	listeners := append([]func(){}, f.onGeom...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Detach simulates the host removing the backing region. Every subsequent
// operation returns ErrDetached.
func (f *LinearField) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}
