package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pkravets/ghostline/internal/engine/edit"
	"github.com/pkravets/ghostline/internal/observe"
	"github.com/pkravets/ghostline/pkg/backend"
)

// onCapture snapshots the current selection into a fresh session. A previous
// in-flight session is cancelled first; its response, if it ever arrives,
// no longer matches the stored session pointer and is dropped.
func (e *Engine) onCapture(id string, st *surfaceState) {
	// A selection exists, so the suggestion flow stops here too.
	e.retireStream(st, StreamCancelled)
	e.stopDebounce(st)

	if st.session != nil && !st.session.Status().Terminal() {
		st.session.Cancel()
		if st.sessionCancel != nil {
			st.sessionCancel()
			st.sessionCancel = nil
		}
		e.events.EditSessionChanged(id, st.session.Snapshot())
	}

	sess, err := edit.Capture(st.surf)
	if err != nil {
		if errors.Is(err, edit.ErrNoSelection) {
			slog.Debug("engine: capture with empty selection", "surface", id)
			return
		}
		if e.dropIfDetached(st, err) {
			return
		}
		e.events.UserError(id, Classify(err), "Could not capture the selection.")
		return
	}
	st.session = sess
	e.events.EditSessionChanged(id, sess.Snapshot())
}

// onSubmit drives Captured → Submitted and issues the backend request. The
// result callback carries the session pointer: if the surface's session has
// been replaced by then, the result is stale.
func (e *Engine) onSubmit(id string, st *surfaceState, instruction string) {
	sess := st.session
	if sess == nil {
		slog.Debug("engine: submit without a session", "surface", id)
		return
	}

	instruction = strings.TrimSpace(instruction)
	if err := sess.Begin(instruction); err != nil {
		if errors.Is(err, edit.ErrEmptyInstruction) {
			// No-op: the session stays Captured and can be resubmitted.
			return
		}
		slog.Debug("engine: submit on non-captured session",
			"surface", id, "status", sess.Status())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	st.sessionCancel = cancel
	e.events.EditSessionChanged(id, sess.Snapshot())

	req := backend.EditRequest{
		SelectedText: sess.OriginalText(),
		Instruction:  instruction,
		Locale:       e.cfg.Locale,
	}
	startedAt := time.Now()
	go e.submitEdit(ctx, id, sess, req, startedAt)
}

// submitEdit runs on its own goroutine.
func (e *Engine) submitEdit(ctx context.Context, id string, sess *edit.Session, req backend.EditRequest, startedAt time.Time) {
	ctx, span := observe.StartSpan(ctx, "backend.SubmitEdit")
	res, err := e.client.SubmitEdit(ctx, req)
	span.End()
	e.sched.Post(func() {
		if st, ok := e.surfaces[id]; ok {
			e.onEditResult(id, st, sess, res, err, startedAt)
		} else {
			e.staleDrop("edit")
		}
	})
}

// onEditResult applies or fails the session. Session identity is the
// staleness guard here instead of a generation counter: a replaced or
// cancelled session never matches, and edit.Session's own status checks make
// duplicate success callbacks apply at most once.
func (e *Engine) onEditResult(id string, st *surfaceState, sess *edit.Session, res *backend.EditResult, err error, startedAt time.Time) {
	if st.session != sess {
		e.staleDrop("edit")
		return
	}
	if st.sessionCancel != nil {
		st.sessionCancel()
		st.sessionCancel = nil
	}

	if err != nil {
		if failErr := sess.Fail(err); failErr != nil {
			// Already cancelled or otherwise terminal. Stay silent.
			e.staleDrop("edit")
			return
		}
		e.metrics.RecordBackendError("submit_edit")
		e.metrics.RecordEditOutcome("failed", time.Since(startedAt))
		e.events.EditSessionChanged(id, sess.Snapshot())
		e.events.UserError(id, Classify(err), "Edit request failed.")
		return
	}

	if applyErr := sess.Apply(res); applyErr != nil {
		if errors.Is(applyErr, edit.ErrNotSubmitted) {
			e.staleDrop("edit")
			return
		}
		// Anchor no longer resolves; the surface is untouched.
		e.metrics.RecordEditOutcome("apply_failed", time.Since(startedAt))
		e.events.EditSessionChanged(id, sess.Snapshot())
		e.events.UserError(id, ClassApply, "The selection changed, edit not applied.")
		return
	}

	e.metrics.RecordEditOutcome("applied", time.Since(startedAt))
	e.events.EditSessionChanged(id, sess.Snapshot())

	go e.deliverFeedback(backend.Feedback{
		SuggestionText:     res.ReplacementText,
		SurroundingContext: sess.OriginalText(),
		WasAccepted:        true,
		Source:             "edit",
		Locale:             e.cfg.Locale,
	})
}

// onPreview requests candidate rewrites for a Captured session without
// moving its state.
func (e *Engine) onPreview(id string, st *surfaceState, instruction string) {
	sess := st.session
	if sess == nil || sess.Status() != edit.StatusCaptured {
		slog.Debug("engine: preview without a captured session", "surface", id)
		return
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return
	}

	req := backend.EditRequest{
		SelectedText: sess.OriginalText(),
		Instruction:  instruction,
		Locale:       e.cfg.Locale,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "backend.PreviewEdits")
		alts, err := e.client.PreviewEdits(ctx, req)
		span.End()
		e.sched.Post(func() {
			cur, ok := e.surfaces[id]
			if !ok || cur.session != sess || sess.Status() != edit.StatusCaptured {
				e.staleDrop("preview")
				return
			}
			if err != nil {
				e.metrics.RecordBackendError("preview_edits")
				e.events.UserError(id, Classify(err), "Could not preview the edit.")
				return
			}
			e.events.EditPreviewReady(id, alts)
		})
	}()
}

// onApplyAlternative commits one previewed alternative through the normal
// session transitions, so exactly-once apply and drift detection hold.
func (e *Engine) onApplyAlternative(id string, st *surfaceState, instruction, alternative string) {
	sess := st.session
	if sess == nil || sess.Status() != edit.StatusCaptured {
		slog.Debug("engine: apply alternative without a captured session", "surface", id)
		return
	}
	instruction = strings.TrimSpace(instruction)
	if alternative == "" || instruction == "" {
		return
	}
	if err := sess.Begin(instruction); err != nil {
		return
	}
	e.events.EditSessionChanged(id, sess.Snapshot())
	res := &backend.EditResult{ReplacementText: alternative}
	if err := sess.Apply(res); err != nil {
		e.events.EditSessionChanged(id, sess.Snapshot())
		e.events.UserError(id, ClassApply, "The selection changed, edit not applied.")
		return
	}
	e.events.EditSessionChanged(id, sess.Snapshot())
}

// onCancelSession abandons the active session. Cancelling a Submitted
// session aborts the request context; the late response is then silently
// dropped by the status guard.
func (e *Engine) onCancelSession(id string, st *surfaceState) {
	sess := st.session
	if sess == nil || sess.Status().Terminal() {
		return
	}
	sess.Cancel()
	if st.sessionCancel != nil {
		st.sessionCancel()
		st.sessionCancel = nil
	}
	e.events.EditSessionChanged(id, sess.Snapshot())
}
