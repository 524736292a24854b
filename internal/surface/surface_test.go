package surface

import (
	"errors"
	"testing"
)

func TestLinearField_ReplaceAtOriginalOffsets(t *testing.T) {
	t.Parallel()

	f := NewLinearField("f1", "say foo bar now")
	anchor := FieldAnchor{Start: 4, End: 11} // "foo bar"

	if err := f.Replace(anchor, "Foo Bar"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	text, _ := f.Text()
	if text != "say Foo Bar now" {
		t.Errorf("text = %q, want %q", text, "say Foo Bar now")
	}
	caret, _ := f.Caret()
	if caret != 11 {
		t.Errorf("caret = %d, want 11", caret)
	}
}

func TestLinearField_ReplaceOutOfRange(t *testing.T) {
	t.Parallel()

	f := NewLinearField("f1", "short")
	err := f.Replace(FieldAnchor{Start: 2, End: 40}, "x")
	if !errors.Is(err, ErrRange) {
		t.Fatalf("err = %v, want ErrRange", err)
	}
	text, _ := f.Text()
	if text != "short" {
		t.Errorf("text mutated on failed replace: %q", text)
	}
}

func TestLinearField_TypeAdvancesRevision(t *testing.T) {
	t.Parallel()

	f := NewLinearField("f1", "He")
	r0, _ := f.Revision()

	changed := 0
	f.OnChanged(func() { changed++ })

	if err := f.Type("llo"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	text, _ := f.Text()
	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	r1, _ := f.Revision()
	if r1 != r0+1 {
		t.Errorf("revision = %d, want %d", r1, r0+1)
	}
	if changed != 1 {
		t.Errorf("change listeners fired %d times, want 1", changed)
	}
}

func TestLinearField_Detach(t *testing.T) {
	t.Parallel()

	f := NewLinearField("f1", "text")
	f.Detach()

	if _, err := f.Text(); !errors.Is(err, ErrDetached) {
		t.Errorf("Text err = %v, want ErrDetached", err)
	}
	if err := f.InsertAt(0, "x"); !errors.Is(err, ErrDetached) {
		t.Errorf("InsertAt err = %v, want ErrDetached", err)
	}
	if err := f.Replace(FieldAnchor{}, "x"); !errors.Is(err, ErrDetached) {
		t.Errorf("Replace err = %v, want ErrDetached", err)
	}
}

func TestLinearField_AnchorKindMismatch(t *testing.T) {
	t.Parallel()

	f := NewLinearField("f1", "text")
	err := f.Replace(RangeAnchor{}, "x")
	if !errors.Is(err, ErrAnchorKind) {
		t.Fatalf("err = %v, want ErrAnchorKind", err)
	}
}

func TestRichRegion_CloneAndReplace(t *testing.T) {
	t.Parallel()

	r := NewRichRegion("r1", "first paragraph", "second one")
	// Select "paragraph" inside the first run.
	if err := r.Select(6, 15); err != nil {
		t.Fatalf("Select: %v", err)
	}
	anchor, err := r.CloneSelectionRange()
	if err != nil {
		t.Fatalf("CloneSelectionRange: %v", err)
	}

	// Host mutates the selection after capture; the anchor must not follow.
	if err := r.Select(0, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := r.Replace(anchor, "line"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	text, _ := r.Text()
	if text != "first line\nsecond one" {
		t.Errorf("text = %q, want %q", text, "first line\nsecond one")
	}
	caret, _ := r.Caret()
	if caret != 10 {
		t.Errorf("caret = %d, want 10", caret)
	}
}

func TestRichRegion_ReplaceAcrossRuns(t *testing.T) {
	t.Parallel()

	r := NewRichRegion("r1", "alpha", "beta", "gamma")
	// Select from inside "alpha" to inside "gamma": "pha\nbeta\ngam".
	if err := r.Select(2, 14); err != nil {
		t.Fatalf("Select: %v", err)
	}
	anchor, err := r.CloneSelectionRange()
	if err != nil {
		t.Fatalf("CloneSelectionRange: %v", err)
	}
	if err := r.Replace(anchor, "X"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	text, _ := r.Text()
	if text != "alXma" {
		t.Errorf("text = %q, want alXma", text)
	}
}

func TestRichRegion_StructuredReplacementSplitsRuns(t *testing.T) {
	t.Parallel()

	r := NewRichRegion("r1", "one paragraph")
	if err := r.Select(4, 13); err != nil {
		t.Fatalf("Select: %v", err)
	}
	anchor, err := r.CloneSelectionRange()
	if err != nil {
		t.Fatalf("CloneSelectionRange: %v", err)
	}
	anchor.Structured = true

	if err := r.Replace(anchor, "a\nb"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	text, _ := r.Text()
	if text != "one a\nb" {
		t.Errorf("text = %q, want %q", text, "one a\nb")
	}
}

func TestRichRegion_ReplaceFailsWhenNodeGone(t *testing.T) {
	t.Parallel()

	r := NewRichRegion("r1", "alpha", "beta")
	if err := r.Select(0, 5); err != nil {
		t.Fatalf("Select: %v", err)
	}
	anchor, err := r.CloneSelectionRange()
	if err != nil {
		t.Fatalf("CloneSelectionRange: %v", err)
	}
	if err := r.RemoveRun(anchor.StartNode); err != nil {
		t.Fatalf("RemoveRun: %v", err)
	}

	err = r.Replace(anchor, "x")
	if !errors.Is(err, ErrRange) {
		t.Fatalf("err = %v, want ErrRange", err)
	}
	text, _ := r.Text()
	if text != "beta" {
		t.Errorf("surface mutated on failed replace: %q", text)
	}
}

func TestRichRegion_ReplaceFailsWhenOffsetsDrifted(t *testing.T) {
	t.Parallel()

	r := NewRichRegion("r1", "long enough run")
	if err := r.Select(5, 11); err != nil {
		t.Fatalf("Select: %v", err)
	}
	anchor, err := r.CloneSelectionRange()
	if err != nil {
		t.Fatalf("CloneSelectionRange: %v", err)
	}
	// Shrink the run below the anchor's end offset.
	if err := r.MutateRun(anchor.StartNode, "tiny"); err != nil {
		t.Fatalf("MutateRun: %v", err)
	}

	err = r.Replace(anchor, "x")
	if !errors.Is(err, ErrRange) {
		t.Fatalf("err = %v, want ErrRange", err)
	}
	text, _ := r.Text()
	if text != "tiny" {
		t.Errorf("surface mutated on failed replace: %q", text)
	}
}

func TestKind_IsValid(t *testing.T) {
	t.Parallel()

	if !KindLinearField.IsValid() || !KindRichRegion.IsValid() {
		t.Error("built-in kinds should be valid")
	}
	if Kind("canvas").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}
