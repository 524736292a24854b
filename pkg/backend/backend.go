// Package backend defines the Client interface for the ghostline assistant
// service.
//
// The assistant service performs language-model inference, retrieval, and
// voice transcription. Ghostline treats it purely as a consumed interface: the
// engine never embeds a model, it only opens completion streams, submits
// edits, transcribes audio, and reports suggestion feedback. Implementations
// live in the subpackages httpapi (the real service), openai (a degraded
// direct bypass), and mock (scripted, for tests).
//
// Implementations must be safe for concurrent use. Channels returned by
// streaming calls must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package backend

import (
	"context"
)

// TokenEvent is a single event emitted by a completion stream.
// Exactly one of Token, Done, or Err is meaningful per event.
type TokenEvent struct {
	// Token is the incremental completion fragment. Empty on terminal events.
	Token string

	// Done is true on the final event of a stream that completed normally.
	Done bool

	// Err is non-nil when the stream failed mid-flight. A stream that reports
	// Err emits no further events.
	Err error
}

// Stream is an open completion stream. The caller owns the stream and must
// call Close when done; Close is idempotent.
type Stream interface {
	// Events returns a read-only channel of ordered token events. The channel
	// is closed after a Done or Err event, or after Close.
	Events() <-chan TokenEvent

	// Close cancels the stream and releases its transport resources. Tokens
	// already buffered on the Events channel may still be read but no new
	// tokens will arrive.
	Close() error
}

// EditRequest carries a captured span and a natural-language instruction.
type EditRequest struct {
	// SelectedText is the exact text of the captured selection at capture time.
	SelectedText string

	// Instruction is the user's natural-language edit request, typed or
	// transcribed from voice.
	Instruction string

	// Locale is the language tag for the edit (e.g. "ru", "en").
	Locale string
}

// EditResult is the outcome of a submitted edit.
type EditResult struct {
	// ReplacementText is the text that should replace the captured span.
	ReplacementText string

	// Confidence is the service's self-assessed quality score in [0, 1].
	Confidence float64

	// Alternatives holds optional candidate replacements beyond the primary.
	Alternatives []string

	// Warning is an optional human-readable caveat from the service.
	Warning string
}

// Feedback is a fire-and-forget record of a suggestion outcome. Failures to
// deliver feedback are logged (or spooled), never surfaced to the user.
type Feedback struct {
	// SuggestionText is the suggestion that was shown.
	SuggestionText string

	// SurroundingContext is the text around the caret when the suggestion was
	// shown, to let the service evaluate suggestion fit.
	SurroundingContext string

	// WasAccepted reports whether the user accepted the suggestion.
	WasAccepted bool

	// Source identifies the producing flow: "completion", "edit", or "voice".
	Source string

	// Locale is the language tag of the surface content.
	Locale string
}

// TranscriptionSession is an open streaming transcription session. Audio
// chunks go in, interim and final transcripts come out.
type TranscriptionSession interface {
	// SendAudio delivers a chunk of encoded audio to the service. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns a read-only channel of transcription results. Interim
	// results may be revised; consumers that need stable text should use only
	// results with Final set. The channel is closed when the session ends.
	Results() <-chan TranscriptionResult

	// Close flushes pending audio and terminates the session. Safe to call
	// more than once.
	Close() error
}

// TranscriptionResult is one transcript emitted during streaming transcription.
type TranscriptionResult struct {
	// Text is the transcribed speech.
	Text string

	// Final indicates an authoritative (non-revisable) result.
	Final bool
}

// Client is the abstraction over the assistant service.
//
// All methods must propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channels) as quickly as
// possible. Methods return wrapped errors classifiable via [Classify].
type Client interface {
	// OpenCompletionStream starts streaming a completion for the text before
	// the caret. The returned error is non-nil only for failures that prevent
	// the stream from being established; mid-stream failures surface as a
	// TokenEvent with Err set.
	//
	// The returned Stream must never be nil when error is nil.
	OpenCompletionStream(ctx context.Context, prefix string, locale string) (Stream, error)

	// Complete returns a full completion in one round trip. Used as the
	// single-shot fallback when a stream cannot be established.
	Complete(ctx context.Context, prefix string, locale string) (string, error)

	// SubmitEdit asks the service to rewrite the captured span per the
	// instruction.
	SubmitEdit(ctx context.Context, req EditRequest) (*EditResult, error)

	// PreviewEdits returns candidate rewrites without committing to any of
	// them. Implementations that cannot produce alternatives may return a
	// single-element slice with the primary rewrite.
	PreviewEdits(ctx context.Context, req EditRequest) ([]string, error)

	// TranscribeAudio converts a bounded recording into a transcript.
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string, locale string) (string, error)

	// StreamTranscribe opens a streaming transcription session.
	// Implementations without streaming transcription return ErrUnsupported.
	StreamTranscribe(ctx context.Context, locale string) (TranscriptionSession, error)

	// TrackFeedback reports a suggestion outcome. Callers treat this as
	// fire-and-forget: an error means the record was not delivered, nothing
	// more.
	TrackFeedback(ctx context.Context, fb Feedback) error
}
