// Package mock provides a scripted, in-memory [backend.Client] for tests.
//
// Every method records its call and returns whatever the test scripted. The
// zero value is usable: all calls succeed with empty results. Streaming calls
// return a [ManualStream] whose events the test emits by hand, unless the
// test pre-scripted tokens via StreamTokens.
package mock

import (
	"context"
	"sync"

	"github.com/pkravets/ghostline/pkg/backend"
)

// Call records one invocation of a client method.
type Call struct {
	// Op names the method: "open_stream", "complete", "submit_edit",
	// "preview_edits", "transcribe", "stream_transcribe", "feedback".
	Op string

	// Prefix holds the completion prefix for "open_stream" and "complete".
	Prefix string

	// Edit holds the request for "submit_edit" and "preview_edits".
	Edit backend.EditRequest

	// Feedback holds the record for "feedback".
	Feedback backend.Feedback

	// Locale is the language tag the call carried.
	Locale string
}

// Client is a scripted backend. Script fields are read at call time, so a
// test may adjust them between calls. Safe for concurrent use.
type Client struct {
	mu sync.Mutex

	// StreamTokens, when non-nil, makes OpenCompletionStream return a stream
	// that replays these tokens followed by a normal Done.
	StreamTokens []string

	// StreamErr makes OpenCompletionStream fail to establish.
	StreamErr error

	// OpenHook, when set, overrides OpenCompletionStream entirely.
	OpenHook func(ctx context.Context, prefix, locale string) (backend.Stream, error)

	// CompleteText and CompleteErr script the single-shot fallback.
	CompleteText string
	CompleteErr  error

	// EditResult and EditErr script SubmitEdit.
	EditResult *backend.EditResult
	EditErr    error

	// EditHook, when set, overrides SubmitEdit entirely. Useful for tests
	// that need to hold a request in flight.
	EditHook func(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error)

	// PreviewAlts and PreviewErr script PreviewEdits.
	PreviewAlts []string
	PreviewErr  error

	// TranscribeText and TranscribeErr script TranscribeAudio.
	TranscribeText string
	TranscribeErr  error

	// SessionHook, when set, overrides StreamTranscribe. When unset,
	// StreamTranscribe returns backend.ErrUnsupported.
	SessionHook func(ctx context.Context, locale string) (backend.TranscriptionSession, error)

	// FeedbackErr scripts TrackFeedback.
	FeedbackErr error

	calls   []Call
	streams []*ManualStream
}

var _ backend.Client = (*Client)(nil)

func (c *Client) record(call Call) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

// Calls returns a copy of all recorded calls in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsTo returns the recorded calls for one operation.
func (c *Client) CallsTo(op string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Streams returns every ManualStream handed out so far, in open order.
func (c *Client) Streams() []*ManualStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ManualStream(nil), c.streams...)
}

// OpenCompletionStream implements backend.Client.
func (c *Client) OpenCompletionStream(ctx context.Context, prefix, locale string) (backend.Stream, error) {
	c.record(Call{Op: "open_stream", Prefix: prefix, Locale: locale})
	c.mu.Lock()
	hook, scriptErr, tokens := c.OpenHook, c.StreamErr, c.StreamTokens
	c.mu.Unlock()

	if hook != nil {
		return hook(ctx, prefix, locale)
	}
	if scriptErr != nil {
		return nil, scriptErr
	}

	s := NewManualStream()
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()

	if tokens != nil {
		for _, tok := range tokens {
			s.Emit(tok)
		}
		s.Finish()
	}
	return s, nil
}

// Complete implements backend.Client.
func (c *Client) Complete(ctx context.Context, prefix, locale string) (string, error) {
	c.record(Call{Op: "complete", Prefix: prefix, Locale: locale})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CompleteText, c.CompleteErr
}

// SubmitEdit implements backend.Client.
func (c *Client) SubmitEdit(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error) {
	c.record(Call{Op: "submit_edit", Edit: req, Locale: req.Locale})
	c.mu.Lock()
	hook, res, err := c.EditHook, c.EditResult, c.EditErr
	c.mu.Unlock()
	if hook != nil {
		return hook(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &backend.EditResult{ReplacementText: req.SelectedText}
	}
	return res, nil
}

// PreviewEdits implements backend.Client.
func (c *Client) PreviewEdits(ctx context.Context, req backend.EditRequest) ([]string, error) {
	c.record(Call{Op: "preview_edits", Edit: req, Locale: req.Locale})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PreviewAlts, c.PreviewErr
}

// TranscribeAudio implements backend.Client.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	c.record(Call{Op: "transcribe", Locale: locale})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TranscribeText, c.TranscribeErr
}

// StreamTranscribe implements backend.Client.
func (c *Client) StreamTranscribe(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
	c.record(Call{Op: "stream_transcribe", Locale: locale})
	c.mu.Lock()
	hook := c.SessionHook
	c.mu.Unlock()
	if hook != nil {
		return hook(ctx, locale)
	}
	return nil, backend.ErrUnsupported
}

// TrackFeedback implements backend.Client.
func (c *Client) TrackFeedback(ctx context.Context, fb backend.Feedback) error {
	c.record(Call{Op: "feedback", Feedback: fb, Locale: fb.Locale})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FeedbackErr
}
