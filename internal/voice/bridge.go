package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkravets/ghostline/internal/observe"
	"github.com/pkravets/ghostline/pkg/backend"
)

// Recorder captures one utterance of audio from the host platform. The
// engine never touches audio devices directly; the host supplies a Recorder.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Record captures audio until the speaker stops or ctx is cancelled and
	// returns the encoded clip with its MIME type.
	Record(ctx context.Context) (audio []byte, mimeType string, err error)
}

// Utterance is one classified transcript.
type Utterance struct {
	// Text is the transcript as returned by the service.
	Text string

	// Final reports whether this is a final transcript. Interim results
	// carry Text only and are never classified as commands.
	Final bool

	// Command is the recognised spoken command, when IsCommand is true.
	Command Command

	// Confidence is the match score of the winning command phrase.
	Confidence float64

	// IsCommand reports whether Text matched a spoken command. When false,
	// Text is dictation or instruction content.
	IsCommand bool
}

// Bridge turns captured audio into classified utterances using the assistant
// service's transcription endpoints.
type Bridge struct {
	client  backend.Client
	filter  *CommandFilter
	locale  string
	metrics *observe.Metrics
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithCommandFilter replaces the default command filter.
func WithCommandFilter(f *CommandFilter) BridgeOption {
	return func(b *Bridge) {
		b.filter = f
	}
}

// WithMetrics wires OTel instruments into the bridge.
func WithMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// NewBridge creates a Bridge that transcribes in the given locale.
func NewBridge(client backend.Client, locale string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		client: client,
		filter: NewCommandFilter(),
		locale: locale,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Dictate records one utterance and transcribes it in a single round trip.
func (b *Bridge) Dictate(ctx context.Context, rec Recorder) (Utterance, error) {
	audio, mimeType, err := rec.Record(ctx)
	if err != nil {
		return Utterance{}, fmt.Errorf("voice: record: %w", err)
	}
	if len(audio) == 0 {
		return Utterance{}, fmt.Errorf("voice: empty recording")
	}

	started := time.Now()
	text, err := b.client.TranscribeAudio(ctx, audio, mimeType, b.locale)
	if err != nil {
		b.metrics.RecordBackendError("transcribe")
		return Utterance{}, fmt.Errorf("voice: transcribe: %w", err)
	}
	b.metrics.RecordTranscription(time.Since(started))
	return b.classify(text, true), nil
}

// StreamDictation opens a streaming transcription session and pipes audio
// chunks from chunks into it. The returned channel yields interim and final
// utterances in arrival order and is closed when the session ends. Closing
// chunks ends the session; cancelling ctx aborts it.
func (b *Bridge) StreamDictation(ctx context.Context, chunks <-chan []byte) (<-chan Utterance, error) {
	sess, err := b.client.StreamTranscribe(ctx, b.locale)
	if err != nil {
		return nil, fmt.Errorf("voice: open transcription stream: %w", err)
	}

	out := make(chan Utterance, 16)

	go func() {
		defer sess.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					return
				}
				if err := sess.SendAudio(chunk); err != nil {
					slog.Debug("voice: send audio failed", "error", err)
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		for result := range sess.Results() {
			u := b.classify(result.Text, result.Final)
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// classify runs the command filter over a transcript. Interim results and
// blank finals pass through unclassified.
func (b *Bridge) classify(text string, final bool) Utterance {
	u := Utterance{Text: text, Final: final}
	if !final || strings.TrimSpace(text) == "" {
		return u
	}
	if cmd, confidence, ok := b.filter.Match(text); ok {
		u.Command = cmd
		u.Confidence = confidence
		u.IsCommand = true
		slog.Debug("voice: command recognised",
			"command", cmd,
			"confidence", confidence,
			"text", text,
		)
	}
	return u
}
