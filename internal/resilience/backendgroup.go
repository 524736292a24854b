package resilience

import (
	"context"

	"github.com/pkravets/ghostline/pkg/backend"
)

// BackendGroup implements [backend.Client] with automatic failover across
// multiple backends, typically the assistant service first and a direct
// model bypass second. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy backend is tried.
type BackendGroup struct {
	group *FallbackGroup[backend.Client]
}

var _ backend.Client = (*BackendGroup)(nil)

// NewBackendGroup creates a [BackendGroup] with primary as the preferred
// backend.
func NewBackendGroup(primary backend.Client, primaryName string, cfg FallbackConfig) *BackendGroup {
	return &BackendGroup{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional backend as a fallback.
func (g *BackendGroup) AddFallback(name string, client backend.Client) {
	g.group.AddFallback(name, client)
}

// OpenCompletionStream opens a stream on the first healthy backend. Only the
// establishment attempt is covered by failover; once a stream is up,
// mid-stream errors are the caller's responsibility.
func (g *BackendGroup) OpenCompletionStream(ctx context.Context, prefix, locale string) (backend.Stream, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) (backend.Stream, error) {
		return c.OpenCompletionStream(ctx, prefix, locale)
	})
}

// Complete implements backend.Client with failover.
func (g *BackendGroup) Complete(ctx context.Context, prefix, locale string) (string, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) (string, error) {
		return c.Complete(ctx, prefix, locale)
	})
}

// SubmitEdit implements backend.Client with failover.
func (g *BackendGroup) SubmitEdit(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) (*backend.EditResult, error) {
		return c.SubmitEdit(ctx, req)
	})
}

// PreviewEdits implements backend.Client with failover.
func (g *BackendGroup) PreviewEdits(ctx context.Context, req backend.EditRequest) ([]string, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) ([]string, error) {
		return c.PreviewEdits(ctx, req)
	})
}

// TranscribeAudio implements backend.Client with failover. Backends without
// a speech stack fail fast with backend.ErrUnsupported and the next one is
// tried.
func (g *BackendGroup) TranscribeAudio(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) (string, error) {
		return c.TranscribeAudio(ctx, audio, mimeType, locale)
	})
}

// StreamTranscribe implements backend.Client with failover on session
// establishment.
func (g *BackendGroup) StreamTranscribe(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
	return ExecuteWithResult(g.group, func(c backend.Client) (backend.TranscriptionSession, error) {
		return c.StreamTranscribe(ctx, locale)
	})
}

// TrackFeedback implements backend.Client. Feedback is fire-and-forget and
// only meaningful to the primary, so it is not retried across fallbacks.
func (g *BackendGroup) TrackFeedback(ctx context.Context, fb backend.Feedback) error {
	entry := &g.group.entries[0]
	return entry.breaker.Execute(func() error {
		return entry.value.TrackFeedback(ctx, fb)
	})
}
