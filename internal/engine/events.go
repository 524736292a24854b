package engine

import "github.com/pkravets/ghostline/internal/engine/edit"

// Events is the engine's outbound interface to the presentation layer.
//
// Callbacks are invoked on the engine's scheduler thread; implementations
// must not call back into the engine synchronously (post instead) and must
// return quickly.
type Events interface {
	// SuggestionChanged reports the currently visible suggestion for a
	// surface. An empty string clears the overlay.
	SuggestionChanged(surfaceID string, text string)

	// EditSessionChanged reports every edit-session state transition.
	EditSessionChanged(surfaceID string, snap edit.Snapshot)

	// EditPreviewReady delivers candidate rewrites requested via
	// [Engine.PreviewEdit].
	EditPreviewReady(surfaceID string, alternatives []string)

	// UserError surfaces a short, user-facing failure message. Only
	// transport, protocol, and apply failures are reported here; local
	// validation and stale results never are.
	UserError(surfaceID string, class Class, message string)
}

// NopEvents is an Events implementation that ignores everything. Useful as a
// default and in tests that only assert on engine state.
type NopEvents struct{}

var _ Events = NopEvents{}

// SuggestionChanged implements Events.
func (NopEvents) SuggestionChanged(string, string) {}

// EditSessionChanged implements Events.
func (NopEvents) EditSessionChanged(string, edit.Snapshot) {}

// EditPreviewReady implements Events.
func (NopEvents) EditPreviewReady(string, []string) {}

// UserError implements Events.
func (NopEvents) UserError(string, Class, string) {}
