package surface

// NodeID identifies a text run inside a rich region. IDs are stable for the
// lifetime of the run: they survive edits to other runs but die with the run.
type NodeID string

// Anchor is a captured, replay-safe description of a selection's location.
// It is captured once, at the moment of user intent, and never re-derived
// from the (possibly changed) surface. The two concrete types form a tagged
// union over surface kinds.
type Anchor interface {
	// AnchorKind returns the surface kind this anchor addresses.
	AnchorKind() Kind
}

// FieldAnchor addresses a half-open [Start, End) rune span in a linear field.
type FieldAnchor struct {
	Start int
	End   int
}

// AnchorKind implements Anchor.
func (FieldAnchor) AnchorKind() Kind { return KindLinearField }

// RangeAnchor is a cloned, structurally independent snapshot of a rich-region
// range. It holds node identities and intra-node offsets by value; it never
// references live selection state, since the host may mutate the selection
// immediately after capture.
type RangeAnchor struct {
	// StartNode and StartOffset locate the range start: a rune offset inside
	// the identified run.
	StartNode   NodeID
	StartOffset int

	// EndNode and EndOffset locate the range end, exclusive.
	EndNode   NodeID
	EndOffset int

	// Revision is the surface revision at capture time. Used by the engine
	// for drift diagnostics; Replace resolves purely by node identity.
	Revision uint64

	// Structured marks replacement text that carries embedded structure and
	// should be split into runs on insertion. Plain replacements are inserted
	// as a single inert run.
	Structured bool
}

// AnchorKind implements Anchor.
func (RangeAnchor) AnchorKind() Kind { return KindRichRegion }
