package voice

import (
	"context"
	"log/slog"
	"strings"
)

// Controller is the subset of the suggestion engine the dispatcher drives.
// Implemented by [engine.Engine].
type Controller interface {
	AcceptCurrentSuggestion(surfaceID string)
	RejectCurrentSuggestion(surfaceID string)
	SubmitEditInstruction(surfaceID string, instruction string)
	CancelEditSession(surfaceID string)
}

// Dispatch consumes classified utterances and drives ctrl for the given
// surface until the channel closes or ctx is cancelled.
//
// Commands map to the corresponding engine operation. Free-text finals are
// held as the pending edit instruction; saying "submit edit" submits the
// most recent one. Interim results are ignored.
func Dispatch(ctx context.Context, surfaceID string, utterances <-chan Utterance, ctrl Controller) {
	var pending string

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-utterances:
			if !ok {
				return
			}
			if !u.Final {
				continue
			}

			if !u.IsCommand {
				if text := strings.TrimSpace(u.Text); text != "" {
					pending = text
				}
				continue
			}

			switch u.Command {
			case CommandAccept:
				ctrl.AcceptCurrentSuggestion(surfaceID)
			case CommandReject:
				ctrl.RejectCurrentSuggestion(surfaceID)
			case CommandCancelEdit:
				pending = ""
				ctrl.CancelEditSession(surfaceID)
			case CommandSubmitEdit:
				if pending == "" {
					slog.Debug("voice: submit edit with no pending instruction", "surface", surfaceID)
					continue
				}
				ctrl.SubmitEditInstruction(surfaceID, pending)
				pending = ""
			default:
				slog.Debug("voice: unhandled command", "command", u.Command)
			}
		}
	}
}
