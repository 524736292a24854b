package voice

import "testing"

func TestCommandFilter_ExactPhrases(t *testing.T) {
	t.Parallel()

	f := NewCommandFilter()

	cases := []struct {
		text string
		want Command
	}{
		{"accept suggestion", CommandAccept},
		{"Accept Suggestion.", CommandAccept},
		{"dismiss suggestion", CommandReject},
		{"dismiss", CommandReject},
		{"cancel edit", CommandCancelEdit},
		{"submit edit", CommandSubmitEdit},
	}
	for _, tc := range cases {
		cmd, confidence, matched := f.Match(tc.text)
		if !matched {
			t.Errorf("Match(%q) did not match", tc.text)
			continue
		}
		if cmd != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.text, cmd, tc.want)
		}
		if confidence < 0.95 {
			t.Errorf("Match(%q) confidence = %v, want near 1 for an exact phrase", tc.text, confidence)
		}
	}
}

func TestCommandFilter_PhoneticTolerance(t *testing.T) {
	t.Parallel()

	f := NewCommandFilter()

	// Transcripts of command phrases come back with misheard or misspelled
	// words. Phonetic overlap plus string similarity should still resolve.
	cases := []struct {
		text string
		want Command
	}{
		{"except suggestion", CommandAccept},
		{"accept sugestion", CommandAccept},
		{"cancel edits", CommandCancelEdit},
		{"dismis suggestion", CommandReject},
	}
	for _, tc := range cases {
		cmd, _, matched := f.Match(tc.text)
		if !matched {
			t.Errorf("Match(%q) did not match, want %q", tc.text, tc.want)
			continue
		}
		if cmd != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.text, cmd, tc.want)
		}
	}
}

func TestCommandFilter_FreeTextPassesThrough(t *testing.T) {
	t.Parallel()

	f := NewCommandFilter()

	for _, text := range []string{
		"",
		"   ",
		"hello there",
		"make this paragraph more formal and polite please",
		"I would accept your apology if you offered one",
	} {
		if cmd, _, matched := f.Match(text); matched {
			t.Errorf("Match(%q) = %q, want no match", text, cmd)
		}
	}
}

func TestCommandFilter_CustomPhrase(t *testing.T) {
	t.Parallel()

	f := NewCommandFilter(WithPhrase("scratch that", CommandReject))

	cmd, _, matched := f.Match("scratch that")
	if !matched || cmd != CommandReject {
		t.Fatalf("Match(scratch that) = (%q, %v), want custom phrase to map to reject", cmd, matched)
	}
}
