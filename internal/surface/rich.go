package surface

import (
	"fmt"
	"strings"
	"sync"
)

// RangeCloner is the extra capability a rich surface must offer so that a
// selection can be captured as a structurally independent [RangeAnchor].
// Linear fields do not implement it; their selections are captured as plain
// offset pairs.
type RangeCloner interface {
	// CloneSelectionRange snapshots the current selection by value. The
	// returned anchor shares no state with the live selection.
	CloneSelectionRange() (RangeAnchor, error)
}

// run is one text node of a rich region.
type run struct {
	id    NodeID
	runes []rune
}

// RichRegion is an in-memory Surface of kind [KindRichRegion]: an ordered
// sequence of text runs with stable node identities, linearised with newline
// joins between runs. It backs unit tests and the demo daemon.
//
// All methods are safe for concurrent use.
type RichRegion struct {
	mu        sync.Mutex
	id        string
	runs      []run
	caret     int
	selStart  int
	selEnd    int
	revision  uint64
	nextNode  int
	detached  bool
	onChanged []func()
	onGeom    []func()
}

var (
	_ Surface     = (*RichRegion)(nil)
	_ RangeCloner = (*RichRegion)(nil)
)

// NewRichRegion creates a rich region with one run per element of paragraphs.
func NewRichRegion(id string, paragraphs ...string) *RichRegion {
	r := &RichRegion{id: id}
	for _, p := range paragraphs {
		r.runs = append(r.runs, run{id: r.newNodeID(), runes: []rune(p)})
	}
	r.caret = r.lengthLocked()
	r.selStart, r.selEnd = r.caret, r.caret
	return r
}

func (r *RichRegion) newNodeID() NodeID {
	r.nextNode++
	return NodeID(fmt.Sprintf("n%d", r.nextNode))
}

// lengthLocked returns the linearised rune length. Caller holds r.mu (or has
// exclusive access during construction).
func (r *RichRegion) lengthLocked() int {
	n := 0
	for i, ru := range r.runs {
		if i > 0 {
			n++ // join newline
		}
		n += len(ru.runes)
	}
	return n
}

// ID implements Surface.
func (r *RichRegion) ID() string { return r.id }

// Kind implements Surface.
func (r *RichRegion) Kind() Kind { return KindRichRegion }

// Text implements Reader. Runs are joined with newlines.
func (r *RichRegion) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return "", ErrDetached
	}
	parts := make([]string, len(r.runs))
	for i, ru := range r.runs {
		parts[i] = string(ru.runes)
	}
	return strings.Join(parts, "\n"), nil
}

// Caret implements Reader.
func (r *RichRegion) Caret() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return 0, ErrDetached
	}
	return r.caret, nil
}

// Selection implements Reader.
func (r *RichRegion) Selection() (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return 0, 0, ErrDetached
	}
	return r.selStart, r.selEnd, nil
}

// Revision implements Reader.
func (r *RichRegion) Revision() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return 0, ErrDetached
	}
	return r.revision, nil
}

// locate maps a linear rune offset to (run index, intra-run offset).
// Offsets that land on a join newline resolve to the end of the preceding
// run. Caller holds r.mu.
func (r *RichRegion) locate(offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset %d", ErrRange, offset)
	}
	pos := 0
	for i, ru := range r.runs {
		if offset <= pos+len(ru.runes) {
			return i, offset - pos, nil
		}
		pos += len(ru.runes) + 1
	}
	return 0, 0, fmt.Errorf("%w: offset %d, length %d", ErrRange, offset, r.lengthLocked())
}

// runStart returns the linear offset of the first rune of run idx.
// Caller holds r.mu.
func (r *RichRegion) runStart(idx int) int {
	pos := 0
	for i := 0; i < idx; i++ {
		pos += len(r.runs[i].runes) + 1
	}
	return pos
}

// runIndex finds a run by node ID. Caller holds r.mu.
func (r *RichRegion) runIndex(id NodeID) (int, bool) {
	for i, ru := range r.runs {
		if ru.id == id {
			return i, true
		}
	}
	return 0, false
}

// InsertAt implements Writer. The text is inserted inside the run containing
// the offset, as inert text.
func (r *RichRegion) InsertAt(offset int, text string) error {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return ErrDetached
	}
	idx, off, err := r.locate(offset)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	ru := &r.runs[idx]
	ins := []rune(text)
	ru.runes = append(ru.runes[:off:off], append(ins, ru.runes[off:]...)...)
	r.revision++
	listeners := append([]func(){}, r.onChanged...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Replace implements Writer. Only RangeAnchor values are accepted. The
// anchor's runs are re-resolved by node identity; if either endpoint run no
// longer exists or its offsets no longer fit, the operation fails with
// ErrRange and nothing is mutated.
func (r *RichRegion) Replace(anchor Anchor, text string) error {
	ra, ok := anchor.(RangeAnchor)
	if !ok {
		return fmt.Errorf("%w: %T on rich region", ErrAnchorKind, anchor)
	}

	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return ErrDetached
	}

	startIdx, ok := r.runIndex(ra.StartNode)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: start node %q gone", ErrRange, ra.StartNode)
	}
	endIdx, ok := r.runIndex(ra.EndNode)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: end node %q gone", ErrRange, ra.EndNode)
	}
	if endIdx < startIdx ||
		ra.StartOffset < 0 || ra.StartOffset > len(r.runs[startIdx].runes) ||
		ra.EndOffset < 0 || ra.EndOffset > len(r.runs[endIdx].runes) ||
		(startIdx == endIdx && ra.EndOffset < ra.StartOffset) {
		r.mu.Unlock()
		return fmt.Errorf("%w: anchor offsets do not fit current runs", ErrRange)
	}

	prefix := r.runs[startIdx].runes[:ra.StartOffset]
	suffix := r.runs[endIdx].runes[ra.EndOffset:]
	insertAt := r.runStart(startIdx) + len(prefix)

	var replaced []run
	if ra.Structured {
		// Structured replacements split into one run per line, preserving
		// embedded paragraph breaks.
		segs := strings.Split(text, "\n")
		first := run{id: r.runs[startIdx].id, runes: append(append([]rune{}, prefix...), []rune(segs[0])...)}
		replaced = append(replaced, first)
		for _, seg := range segs[1:] {
			replaced = append(replaced, run{id: r.newNodeID(), runes: []rune(seg)})
		}
		last := &replaced[len(replaced)-1]
		last.runes = append(last.runes, suffix...)
	} else {
		merged := append(append(append([]rune{}, prefix...), []rune(text)...), suffix...)
		replaced = []run{{id: r.runs[startIdx].id, runes: merged}}
	}

	tail := append([]run{}, r.runs[endIdx+1:]...)
	r.runs = append(append(r.runs[:startIdx:startIdx], replaced...), tail...)

	end := insertAt + len([]rune(text))
	r.caret = end
	r.selStart, r.selEnd = end, end
	r.revision++
	listeners := append([]func(){}, r.onChanged...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// SetCaret implements Writer.
func (r *RichRegion) SetCaret(offset int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return ErrDetached
	}
	if _, _, err := r.locate(offset); err != nil {
		return err
	}
	r.caret = offset
	r.selStart, r.selEnd = offset, offset
	return nil
}

// Select sets the selection as linear offsets and moves the caret to the end.
func (r *RichRegion) Select(start, end int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return ErrDetached
	}
	if start < 0 || end < start || end > r.lengthLocked() {
		return fmt.Errorf("%w: selection [%d,%d)", ErrRange, start, end)
	}
	r.selStart, r.selEnd = start, end
	r.caret = end
	return nil
}

// CloneSelectionRange implements RangeCloner. The snapshot holds node IDs and
// intra-run offsets by value and is unaffected by later selection changes.
func (r *RichRegion) CloneSelectionRange() (RangeAnchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return RangeAnchor{}, ErrDetached
	}
	si, so, err := r.locate(r.selStart)
	if err != nil {
		return RangeAnchor{}, err
	}
	ei, eo, err := r.locate(r.selEnd)
	if err != nil {
		return RangeAnchor{}, err
	}
	return RangeAnchor{
		StartNode:   r.runs[si].id,
		StartOffset: so,
		EndNode:     r.runs[ei].id,
		EndOffset:   eo,
		Revision:    r.revision,
	}, nil
}

// MutateRun replaces the text of the identified run directly, bypassing
// anchors. Used by tests to simulate host-side edits that drift the surface
// under a pending session.
func (r *RichRegion) MutateRun(id NodeID, text string) error {
	r.mu.Lock()
	idx, ok := r.runIndex(id)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: node %q gone", ErrRange, id)
	}
	r.runs[idx].runes = []rune(text)
	r.revision++
	listeners := append([]func(){}, r.onChanged...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// RemoveRun deletes the identified run. Used by tests to break anchors.
func (r *RichRegion) RemoveRun(id NodeID) error {
	r.mu.Lock()
	idx, ok := r.runIndex(id)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: node %q gone", ErrRange, id)
	}
	r.runs = append(r.runs[:idx:idx], r.runs[idx+1:]...)
	r.revision++
	listeners := append([]func(){}, r.onChanged...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnChanged implements Observer.
func (r *RichRegion) OnChanged(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChanged = append(r.onChanged, fn)
}

// OnGeometry implements Observer.
func (r *RichRegion) OnGeometry(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onGeom = append(r.onGeom, fn)
}

// NotifyGeometry fires geometry listeners.
func (r *RichRegion) NotifyGeometry() {
	r.mu.Lock()
	listeners := append([]func(){}, r.onGeom...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Detach simulates the host removing the backing region.
func (r *RichRegion) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
}
