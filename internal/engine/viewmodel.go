package engine

import "strings"

// visibleSuggestion projects accumulated suggestion text onto the current
// surface content.
//
// The visible suggestion is the suffix of the accumulated text that is not
// yet literally present in the surface after the anchor caret: if the user
// (or an accept) has already materialised a prefix of the suggestion between
// the anchor and the current caret, only the remainder is shown. When the
// materialised span diverges from the suggestion, nothing is shown — the
// suggestion no longer fits.
//
// This is a pure projection: it is recomputed on every geometry change
// without re-querying the backend.
func visibleSuggestion(accumulated, surfaceText string, anchorCaret, caret int) string {
	if accumulated == "" {
		return ""
	}
	runes := []rune(surfaceText)
	if anchorCaret < 0 || caret < anchorCaret || caret > len(runes) {
		return ""
	}
	typed := string(runes[anchorCaret:caret])
	if !strings.HasPrefix(accumulated, typed) {
		return ""
	}
	return accumulated[len(typed):]
}
