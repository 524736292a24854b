// Package engine implements the client-side concurrency core of ghostline:
// generation counters, debounced suggestion streams, caret-anchored
// suggestion projection, and exactly-once edit application.
//
// All engine state lives on a single logical thread provided by a
// [Scheduler]. Public methods post tasks onto that thread and return
// immediately; backend calls run on their own goroutines and re-enter the
// scheduler with their generation carried in the closure, so a late callback
// can always be identified as stale without reading shared mutable state.
package engine

import (
	"log/slog"
	"time"

	"github.com/pkravets/ghostline/internal/engine/edit"
	"github.com/pkravets/ghostline/internal/observe"
	"github.com/pkravets/ghostline/internal/surface"
	"github.com/pkravets/ghostline/pkg/backend"
)

// Config holds tunables for the engine. Zero values select the defaults.
type Config struct {
	// Debounce is the quiet period after the last input event before a new
	// suggestion stream is opened.
	Debounce time.Duration

	// MinPrefixLen is the minimum rune count of text before the caret for a
	// suggestion stream to open.
	MinPrefixLen int

	// FirstByteTimeout bounds how long an established stream may stay silent
	// before it is treated as failed-to-establish.
	FirstByteTimeout time.Duration

	// IdleTimeout bounds the gap between consecutive tokens on a live
	// stream. It resets on every token, so a slow but alive stream is fine.
	IdleTimeout time.Duration

	// ViewFlushInterval rate-limits suggestion overlay updates. Updates are
	// coalesced, never dropped: the final state always reaches the view.
	ViewFlushInterval time.Duration

	// RequestTimeout bounds single-shot backend calls (fallback completion,
	// edit submission, feedback).
	RequestTimeout time.Duration

	// Locale is the language tag passed to the backend.
	Locale string
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.MinPrefixLen <= 0 {
		c.MinPrefixLen = 3
	}
	if c.FirstByteTimeout <= 0 {
		c.FirstByteTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Second
	}
	if c.ViewFlushInterval <= 0 {
		c.ViewFlushInterval = 50 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.Locale == "" {
		c.Locale = "ru"
	}
	return c
}

// surfaceState is the per-surface coordination state. Confined to the
// scheduler thread.
type surfaceState struct {
	surf       surface.Surface
	generation uint64
	focused    bool
	visible    bool

	// shown is the suggestion text last pushed to the presentation layer.
	shown string

	debounce Timer
	stream   *stream

	session       *edit.Session
	sessionCancel func()
}

// Engine coordinates suggestion streams and edit sessions across attached
// surfaces. Create with [New]; all methods are safe for concurrent use since
// they serialise through the scheduler.
type Engine struct {
	cfg     Config
	client  backend.Client
	sched   Scheduler
	events  Events
	metrics *observe.Metrics

	// spool receives feedback records that could not be delivered.
	spool func(backend.Feedback)

	// surfaces and closed are confined to the scheduler thread.
	surfaces map[string]*surfaceState
	closed   bool
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics wires OTel instruments into the engine.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFeedbackSpool registers a sink for feedback records whose delivery
// failed. The sink is called from a backend goroutine, never from the
// scheduler thread.
func WithFeedbackSpool(fn func(backend.Feedback)) Option {
	return func(e *Engine) { e.spool = fn }
}

// New creates an Engine driving its state on sched and talking to client.
// events receives presentation callbacks; pass [NopEvents] to ignore them.
func New(client backend.Client, sched Scheduler, events Events, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		client:   client,
		sched:    sched,
		events:   events,
		surfaces: make(map[string]*surfaceState),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Attach registers a surface with the engine. The surface starts focused and
// visible; geometry notifications re-project the suggestion overlay.
//
// The engine does not subscribe to the surface's change events itself: the
// host forwards user input via [Engine.SurfaceChanged], which keeps the
// engine's own writes (accept, edit apply) from re-triggering the debounce.
func (e *Engine) Attach(surf surface.Surface) {
	id := surf.ID()
	surf.OnGeometry(func() {
		e.sched.Post(func() {
			if st, ok := e.surfaces[id]; ok {
				e.flushView(st, true)
			}
		})
	})
	e.sched.Post(func() {
		if e.closed {
			return
		}
		e.surfaces[id] = &surfaceState{
			surf:    surf,
			focused: true,
			visible: true,
		}
	})
}

// Detach unregisters a surface, cancelling its stream and session.
func (e *Engine) Detach(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.dropSurface(st)
		}
	})
}

// SurfaceChanged notifies the engine of user input on a surface. It cancels
// any live stream, advances the generation, and re-arms the debounce timer.
func (e *Engine) SurfaceChanged(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onSurfaceChanged(surfaceID, st)
		}
	})
}

// SelectionChanged notifies the engine that the selection changed. A
// non-empty selection cancels the suggestion flow.
func (e *Engine) SelectionChanged(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onSelectionChanged(st)
		}
	})
}

// FocusGained notifies the engine that the surface regained focus.
func (e *Engine) FocusGained(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			st.focused = true
		}
	})
}

// FocusLost notifies the engine that the surface lost focus, cancelling any
// live stream.
func (e *Engine) FocusLost(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			st.focused = false
			e.retireStream(st, StreamCancelled)
			e.stopDebounce(st)
		}
	})
}

// VisibilityChanged notifies the engine of host visibility. Going hidden
// cancels any live stream.
func (e *Engine) VisibilityChanged(surfaceID string, visible bool) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			st.visible = visible
			if !visible {
				e.retireStream(st, StreamCancelled)
				e.stopDebounce(st)
			}
		}
	})
}

// AcceptCurrentSuggestion writes the visible suggestion at its anchor, moves
// the caret to the end of the inserted text, retires the stream, and bumps
// the generation so late tokens cannot reappear.
func (e *Engine) AcceptCurrentSuggestion(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onAccept(surfaceID, st)
		}
	})
}

// RejectCurrentSuggestion discards the visible suggestion immediately. No
// backend call is needed to complete the rejection; the feedback signal is
// fire-and-forget.
func (e *Engine) RejectCurrentSuggestion(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onReject(surfaceID, st)
		}
	})
}

// CaptureSelectionAndOpenEditor snapshots the current selection into a new
// edit session, replacing (and cancelling) any previous one.
func (e *Engine) CaptureSelectionAndOpenEditor(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onCapture(surfaceID, st)
		}
	})
}

// SubmitEditInstruction submits the instruction for the active session. A
// blank instruction is a no-op: the session stays Captured and no request is
// issued.
func (e *Engine) SubmitEditInstruction(surfaceID string, instruction string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onSubmit(surfaceID, st, instruction)
		}
	})
}

// PreviewEdit requests candidate rewrites for the active (Captured) session
// without applying any of them. Results arrive via
// [Events.EditPreviewReady].
func (e *Engine) PreviewEdit(surfaceID string, instruction string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onPreview(surfaceID, st, instruction)
		}
	})
}

// ApplyEditAlternative applies a previewed alternative through the same
// exactly-once path as a submitted edit.
func (e *Engine) ApplyEditAlternative(surfaceID string, instruction, alternative string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onApplyAlternative(surfaceID, st, instruction, alternative)
		}
	})
}

// CancelEditSession abandons the active session. A response that still
// arrives afterwards is ignored.
func (e *Engine) CancelEditSession(surfaceID string) {
	e.sched.Post(func() {
		if st, ok := e.surfaces[surfaceID]; ok {
			e.onCancelSession(surfaceID, st)
		}
	})
}

// Close cancels all streams and sessions and rejects further work. Engine
// state is ephemeral; there is nothing to persist.
func (e *Engine) Close() {
	e.sched.Post(func() {
		for _, st := range e.surfaces {
			e.dropSurface(st)
		}
		e.closed = true
	})
}

// dropSurface retires everything belonging to st and forgets it.
// Scheduler thread only.
func (e *Engine) dropSurface(st *surfaceState) {
	e.retireStream(st, StreamCancelled)
	e.stopDebounce(st)
	if st.session != nil && !st.session.Status().Terminal() {
		st.session.Cancel()
	}
	if st.sessionCancel != nil {
		st.sessionCancel()
		st.sessionCancel = nil
	}
	delete(e.surfaces, st.surf.ID())
}

func (e *Engine) stopDebounce(st *surfaceState) {
	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}
}

// staleDrop records a silently discarded async result.
// Scheduler thread only.
func (e *Engine) staleDrop(kind string) {
	slog.Debug("engine: stale result dropped", "kind", kind)
	e.metrics.RecordStaleDrop(kind)
}
