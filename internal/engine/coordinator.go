package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pkravets/ghostline/internal/observe"
	"github.com/pkravets/ghostline/internal/surface"
	"github.com/pkravets/ghostline/pkg/backend"
)

// All functions in this file run on the scheduler thread unless their name
// ends in the "goroutine" suffix convention used by establish / fallback /
// deliverFeedback, which run on their own goroutines and only re-enter
// through Post.

// onSurfaceChanged handles user input: the old stream is cancelled before
// the generation advances, then the debounce re-arms with the new generation
// and the caret at arm time captured in the closure.
func (e *Engine) onSurfaceChanged(id string, st *surfaceState) {
	e.retireStream(st, StreamCancelled)
	st.generation++
	e.stopDebounce(st)

	if !st.focused || !st.visible {
		return
	}

	selStart, selEnd, err := st.surf.Selection()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	if selStart != selEnd {
		return
	}

	caret, err := st.surf.Caret()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}

	gen := st.generation
	st.debounce = e.sched.After(e.cfg.Debounce, func() {
		if cur, ok := e.surfaces[id]; ok {
			e.onDebounceFire(id, cur, gen, caret)
		}
	})
}

// onDebounceFire opens a suggestion stream if the surface is still in the
// state it was armed for.
func (e *Engine) onDebounceFire(id string, st *surfaceState, gen uint64, armedCaret int) {
	if st.generation != gen {
		return
	}
	caret, err := st.surf.Caret()
	if err != nil || caret != armedCaret {
		e.dropIfDetached(st, err)
		return
	}
	selStart, selEnd, err := st.surf.Selection()
	if err != nil || selStart != selEnd {
		e.dropIfDetached(st, err)
		return
	}
	text, err := st.surf.Text()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	runes := []rune(text)
	if caret > len(runes) {
		return
	}
	prefix := string(runes[:caret])
	if len([]rune(prefix)) < e.cfg.MinPrefixLen {
		return
	}
	rev, err := st.surf.Revision()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	e.openStream(id, st, gen, prefix, caret, rev)
}

// onSelectionChanged cancels the suggestion flow when a selection becomes
// non-empty.
func (e *Engine) onSelectionChanged(st *surfaceState) {
	selStart, selEnd, err := st.surf.Selection()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	if selStart != selEnd {
		e.retireStream(st, StreamCancelled)
		e.stopDebounce(st)
	}
}

// openStream establishes a stream for the given generation. Only one stream
// per surface can exist because the previous one is always retired before
// the generation advances.
func (e *Engine) openStream(id string, st *surfaceState, gen uint64, prefix string, caret int, rev uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		generation:   gen,
		state:        StreamOpening,
		anchorCaret:  caret,
		baseRevision: rev,
		prefix:       prefix,
		openedAt:     time.Now(),
		cancel:       cancel,
	}
	s.firstByte = e.sched.After(e.cfg.FirstByteTimeout, func() {
		if cur, ok := e.surfaces[id]; ok {
			e.onFirstByteTimeout(id, cur, gen)
		}
	})
	st.stream = s
	e.metrics.AddActiveStreams(1)

	go e.establish(ctx, id, gen, prefix)
}

// establish runs on its own goroutine: it opens the transport stream and
// forwards every event back onto the scheduler with the generation attached.
func (e *Engine) establish(ctx context.Context, id string, gen uint64, prefix string) {
	ctx, span := observe.StartSpan(ctx, "backend.OpenCompletionStream")
	bs, err := e.client.OpenCompletionStream(ctx, prefix, e.cfg.Locale)
	span.End()
	if err != nil {
		e.sched.Post(func() {
			if st, ok := e.surfaces[id]; ok {
				e.onEstablishFailed(id, st, gen, err)
			} else {
				e.staleDrop("establish")
			}
		})
		return
	}
	defer bs.Close()

	e.sched.Post(func() {
		if st, ok := e.surfaces[id]; ok {
			e.onEstablished(st, gen)
		}
	})

	for ev := range bs.Events() {
		ev := ev
		e.sched.Post(func() {
			if st, ok := e.surfaces[id]; ok {
				e.onStreamEvent(id, st, gen, ev)
			} else {
				e.staleDrop("token")
			}
		})
	}
}

// liveStream returns the surface's stream when it still belongs to gen.
func liveStream(st *surfaceState, gen uint64) (*stream, bool) {
	s := st.stream
	if s == nil || s.generation != gen || st.generation != gen {
		return nil, false
	}
	return s, true
}

func (e *Engine) onEstablished(st *surfaceState, gen uint64) {
	s, ok := liveStream(st, gen)
	if !ok || s.state != StreamOpening {
		return
	}
	s.state = StreamStreaming
}

// onEstablishFailed runs the single-shot completion fallback. The fallback
// covers only establishment: a stream that already delivered a token never
// falls back, and the fallback itself runs at most once per stream.
func (e *Engine) onEstablishFailed(id string, st *surfaceState, gen uint64, cause error) {
	s, ok := liveStream(st, gen)
	if !ok {
		e.staleDrop("establish")
		return
	}
	if s.state != StreamOpening || s.gotToken || s.fellBack {
		return
	}
	slog.Debug("engine: stream establishment failed, falling back",
		"surface", id, "error", cause)
	e.metrics.RecordBackendError("open_stream")
	if s.firstByte != nil {
		s.firstByte.Stop()
		s.firstByte = nil
	}
	s.fellBack = true
	go e.fallback(id, gen, s.prefix)
}

// fallback runs on its own goroutine.
func (e *Engine) fallback(id string, gen uint64, prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "backend.Complete")
	text, err := e.client.Complete(ctx, prefix, e.cfg.Locale)
	span.End()
	e.sched.Post(func() {
		if st, ok := e.surfaces[id]; ok {
			e.onFallbackResult(id, st, gen, text, err)
		} else {
			e.staleDrop("fallback")
		}
	})
}

func (e *Engine) onFallbackResult(id string, st *surfaceState, gen uint64, text string, err error) {
	s, ok := liveStream(st, gen)
	if !ok || s.state.Terminal() {
		e.staleDrop("fallback")
		return
	}
	if s.gotToken {
		// A token slipped in before the transport cancel landed. The partial
		// stream is already visible and wins over the fallback.
		e.staleDrop("fallback")
		return
	}
	if err != nil {
		e.metrics.RecordBackendError("complete")
		e.finishStream(s, StreamErrored)
		e.events.UserError(id, Classify(err), "Suggestions are unavailable right now.")
		e.flushView(st, false)
		return
	}
	s.append(text)
	e.finishStream(s, StreamCompleted)
	e.flushView(st, false)
}

// onStreamEvent processes one token event for gen. A mismatched generation
// is the single most important guard in the engine: it is what keeps late
// tokens of a superseded stream from ever reaching the view.
func (e *Engine) onStreamEvent(id string, st *surfaceState, gen uint64, ev backend.TokenEvent) {
	s, ok := liveStream(st, gen)
	if !ok {
		e.staleDrop("token")
		return
	}
	if s.state.Terminal() {
		// Terminal transition already happened; buffered leftovers are
		// dropped.
		return
	}
	if s.fellBack {
		// Once the fallback is armed it owns the stream's outcome. The
		// cancelled transport echoes an Err event; swallowing it here keeps
		// that echo from terminalising the stream before the fallback lands.
		e.staleDrop("token")
		return
	}

	switch {
	case ev.Err != nil:
		e.metrics.RecordBackendError("stream")
		e.finishStream(s, StreamErrored)
		e.events.UserError(id, Classify(ev.Err), "Suggestion stream failed.")
		// Tokens already shown stay visible; the user may still accept the
		// partial suggestion.
		e.flushView(st, false)

	case ev.Done:
		e.finishStream(s, StreamCompleted)
		e.flushView(st, false)

	default:
		if !s.gotToken && s.firstByte != nil {
			s.firstByte.Stop()
			s.firstByte = nil
		}
		if s.state == StreamOpening {
			s.state = StreamStreaming
		}
		s.append(ev.Token)
		e.resetIdle(id, s, gen)
		e.scheduleFlush(id, s, gen)
	}
}

func (e *Engine) resetIdle(id string, s *stream, gen uint64) {
	if s.idle != nil {
		s.idle.Stop()
	}
	s.idle = e.sched.After(e.cfg.IdleTimeout, func() {
		if st, ok := e.surfaces[id]; ok {
			e.onIdleTimeout(id, st, gen)
		}
	})
}

// onFirstByteTimeout treats an established-but-silent stream like an
// establishment failure: cancel it and run the fallback, which is still
// valid because no token has been received.
func (e *Engine) onFirstByteTimeout(id string, st *surfaceState, gen uint64) {
	s, ok := liveStream(st, gen)
	if !ok || s.gotToken || s.fellBack || s.state.Terminal() {
		return
	}
	slog.Debug("engine: no data before first-byte timeout", "surface", id)
	if s.cancel != nil {
		s.cancel()
	}
	s.fellBack = true
	go e.fallback(id, gen, s.prefix)
}

func (e *Engine) onIdleTimeout(id string, st *surfaceState, gen uint64) {
	s, ok := liveStream(st, gen)
	if !ok || s.state.Terminal() {
		return
	}
	e.finishStream(s, StreamErrored)
	e.events.UserError(id, ClassTransport, "Suggestion stream stalled.")
	e.flushView(st, false)
}

// scheduleFlush coalesces view updates: at most one flush per
// ViewFlushInterval, and terminal transitions flush immediately elsewhere,
// so the final state is never lost.
func (e *Engine) scheduleFlush(id string, s *stream, gen uint64) {
	if s.flushArmed {
		return
	}
	s.flushArmed = true
	e.sched.After(e.cfg.ViewFlushInterval, func() {
		cur, ok := e.surfaces[id]
		if !ok {
			return
		}
		if cs, live := liveStream(cur, gen); live {
			cs.flushArmed = false
		}
		e.flushView(cur, false)
	})
}

// flushView recomputes the visible suggestion and pushes it to the
// presentation layer when it changed (or unconditionally when force is set,
// used for geometry re-projection).
func (e *Engine) flushView(st *surfaceState, force bool) {
	id := st.surf.ID()
	s := st.stream
	if s == nil {
		if st.shown != "" || force {
			st.shown = ""
			e.events.SuggestionChanged(id, "")
		}
		return
	}

	rev, err := st.surf.Revision()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	if rev != s.baseRevision {
		// Host mutated the surface underneath us. The overlay is invalid.
		e.retireStream(st, StreamCancelled)
		return
	}

	text, err := st.surf.Text()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	caret, err := st.surf.Caret()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}

	v := visibleSuggestion(s.text(), text, s.anchorCaret, caret)
	if v != st.shown || force {
		st.shown = v
		e.events.SuggestionChanged(id, v)
	}
}

// onAccept materialises the visible suggestion at its anchor.
func (e *Engine) onAccept(id string, st *surfaceState) {
	s := st.stream
	if s == nil || s.state == StreamCancelled {
		return
	}

	rev, err := st.surf.Revision()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	if rev != s.baseRevision {
		e.retireStream(st, StreamCancelled)
		return
	}
	text, err := st.surf.Text()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}
	caret, err := st.surf.Caret()
	if err != nil {
		e.dropIfDetached(st, err)
		return
	}

	v := visibleSuggestion(s.text(), text, s.anchorCaret, caret)
	if v == "" {
		return
	}

	if err := st.surf.InsertAt(caret, v); err != nil {
		if e.dropIfDetached(st, err) {
			return
		}
		e.retireStream(st, StreamCancelled)
		e.events.UserError(id, ClassApply, "Could not insert the suggestion.")
		return
	}
	if err := st.surf.SetCaret(caret + len([]rune(v))); err != nil {
		e.dropIfDetached(st, err)
	}

	prefix := s.prefix
	e.retireStream(st, StreamCompleted)
	// A later token of this stream must never resurface.
	st.generation++

	e.metrics.RecordSuggestionOutcome(true)
	go e.deliverFeedback(backend.Feedback{
		SuggestionText:     v,
		SurroundingContext: prefix,
		WasAccepted:        true,
		Source:             "completion",
		Locale:             e.cfg.Locale,
	})
}

// onReject discards the current suggestion. The rejection completes locally;
// feedback delivery happens off-thread and its outcome does not matter here.
func (e *Engine) onReject(id string, st *surfaceState) {
	s := st.stream
	if s == nil {
		return
	}
	shown := st.shown
	prefix := s.prefix
	e.retireStream(st, StreamCancelled)
	st.generation++

	e.metrics.RecordSuggestionOutcome(false)
	if shown == "" {
		return
	}
	go e.deliverFeedback(backend.Feedback{
		SuggestionText:     shown,
		SurroundingContext: prefix,
		WasAccepted:        false,
		Source:             "completion",
		Locale:             e.cfg.Locale,
	})
}

// retireStream finishes and drops the surface's stream and clears the
// overlay. The outcome parameter only matters when the stream is not already
// terminal.
func (e *Engine) retireStream(st *surfaceState, outcome StreamState) {
	s := st.stream
	if s == nil {
		return
	}
	e.finishStream(s, outcome)
	st.stream = nil
	e.metrics.AddActiveStreams(-1)
	if st.shown != "" {
		st.shown = ""
		e.events.SuggestionChanged(st.surf.ID(), "")
	}
}

// finishStream performs the terminal transition and records the stream
// metric exactly once.
func (e *Engine) finishStream(s *stream, state StreamState) {
	if s.state.Terminal() {
		return
	}
	s.finish(state)
	e.metrics.RecordStreamOutcome(string(s.state), time.Since(s.openedAt))
}

// dropIfDetached removes st from the engine when err signals a detached
// surface and reports whether it did so. Any other error is left to the
// caller.
func (e *Engine) dropIfDetached(st *surfaceState, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, surface.ErrDetached) {
		slog.Debug("engine: surface detached", "surface", st.surf.ID())
		e.dropSurface(st)
		return true
	}
	return false
}

// deliverFeedback runs on its own goroutine; failures are logged and spooled,
// never surfaced.
func (e *Engine) deliverFeedback(fb backend.Feedback) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	defer cancel()
	if err := e.client.TrackFeedback(ctx, fb); err != nil {
		slog.Debug("engine: feedback delivery failed", "error", err)
		if e.spool != nil {
			e.spool(fb)
		}
	}
}
