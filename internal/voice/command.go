// Package voice connects audio capture to the assistant service's
// transcription endpoints and classifies the resulting transcripts. A final
// transcript is either a spoken command ("accept suggestion", "cancel edit")
// or free text to be used as dictation or an edit instruction.
//
// Command detection is phonetic: transcripts rarely come back verbatim, so
// candidate phrases are compared using Double Metaphone codes for coarse
// filtering and Jaro-Winkler similarity for ranking. Only matches above the
// configured threshold are treated as commands; everything else passes
// through untouched.
package voice

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Command identifies a recognised spoken command.
type Command string

const (
	// CommandAccept accepts the currently shown suggestion.
	CommandAccept Command = "accept"
	// CommandReject dismisses the currently shown suggestion.
	CommandReject Command = "reject"
	// CommandCancelEdit abandons the in-flight edit session.
	CommandCancelEdit Command = "cancel_edit"
	// CommandSubmitEdit submits the pending edit instruction.
	CommandSubmitEdit Command = "submit_edit"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	maxCommandTokens = 3
)

// phrase pairs a spoken trigger with the command it maps to.
type phrase struct {
	text    string
	tokens  []string
	codes   map[string]struct{}
	command Command
}

// FilterOption configures a CommandFilter.
type FilterOption func(*CommandFilter)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched phrase to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) FilterOption {
	return func(f *CommandFilter) {
		f.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found and the filter falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) FilterOption {
	return func(f *CommandFilter) {
		f.fuzzyThreshold = threshold
	}
}

// WithPhrase registers an additional trigger phrase for a command.
func WithPhrase(text string, cmd Command) FilterOption {
	return func(f *CommandFilter) {
		f.phrases = append(f.phrases, newPhrase(text, cmd))
	}
}

// CommandFilter classifies final transcripts as spoken commands or free text.
// Safe for concurrent use after construction.
type CommandFilter struct {
	phrases           []phrase
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCommandFilter returns a filter loaded with the built-in trigger phrases.
func NewCommandFilter(opts ...FilterOption) *CommandFilter {
	f := &CommandFilter{
		phrases:           defaultPhrases(),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Match tests whether text is a spoken command. When matched is true, cmd is
// the recognised command and confidence is the Jaro-Winkler score of the
// winning phrase. When matched is false, text should be treated as ordinary
// transcript content.
func (f *CommandFilter) Match(text string) (cmd Command, confidence float64, matched bool) {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	trimmed = strings.TrimRight(trimmed, ".!?,")
	if trimmed == "" {
		return "", 0, false
	}

	tokens := strings.Fields(trimmed)
	// Commands are short utterances. Longer finals are dictation even when
	// they happen to contain a trigger word.
	if len(tokens) > maxCommandTokens {
		return "", 0, false
	}
	inputCodes := codesForTokens(tokens)

	var (
		best         phrase
		bestScore    float64
		bestPhonetic bool
	)

	for _, p := range f.phrases {
		phonetic := codesOverlap(inputCodes, p.codes)
		score := bestSimilarity(tokens, p.tokens, trimmed, p.text)

		switch {
		case phonetic && score >= f.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = p, score, true
			}
		case !phonetic && !bestPhonetic:
			if score >= f.fuzzyThreshold && score > bestScore {
				best, bestScore = p, score
			}
		}
	}

	if best.text == "" {
		return "", 0, false
	}
	return best.command, bestScore, true
}

func newPhrase(text string, cmd Command) phrase {
	lower := strings.ToLower(strings.TrimSpace(text))
	tokens := strings.Fields(lower)
	return phrase{
		text:    lower,
		tokens:  tokens,
		codes:   codesForTokens(tokens),
		command: cmd,
	}
}

func defaultPhrases() []phrase {
	return []phrase{
		newPhrase("accept suggestion", CommandAccept),
		newPhrase("accept", CommandAccept),
		newPhrase("dismiss suggestion", CommandReject),
		newPhrase("dismiss", CommandReject),
		newPhrase("reject suggestion", CommandReject),
		newPhrase("cancel edit", CommandCancelEdit),
		newPhrase("cancel", CommandCancelEdit),
		newPhrase("apply edit", CommandSubmitEdit),
		newPhrase("submit edit", CommandSubmitEdit),
	}
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler score between the input
// and a phrase using full-string, space-stripped, and pairwise-token
// comparisons. Multi-word phrases match even when the transcript splits or
// joins words differently.
func bestSimilarity(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	if len(inputTokens) > 1 || len(phraseTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, pt := range phraseTokens {
			if s := matchr.JaroWinkler(it, pt, false); s > score {
				score = s
			}
		}
	}

	return score
}
