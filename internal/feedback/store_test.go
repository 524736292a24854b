package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/mock"
)

func tempSpool(t *testing.T) *Spool {
	t.Helper()
	return NewSpool(filepath.Join(t.TempDir(), "feedback.jsonl"))
}

func TestSpool_AddAndPending(t *testing.T) {
	t.Parallel()
	s := tempSpool(t)

	for _, fb := range []backend.Feedback{
		{SuggestionText: "ld there", WasAccepted: true, Source: "completion", Locale: "en"},
		{SuggestionText: "Foo Bar", WasAccepted: false, Source: "edit", Locale: "ru"},
	} {
		if err := s.Add(fb); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	records, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("pending = %d records, want 2", len(records))
	}
	if records[0].Feedback.SuggestionText != "ld there" || !records[0].Feedback.WasAccepted {
		t.Errorf("first record = %+v", records[0].Feedback)
	}
	if records[1].Feedback.Source != "edit" {
		t.Errorf("second record = %+v", records[1].Feedback)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("record timestamp not set")
	}
}

func TestSpool_PendingOnMissingFile(t *testing.T) {
	t.Parallel()
	s := tempSpool(t)
	records, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if records != nil {
		t.Errorf("pending on missing file = %v, want nil", records)
	}
}

func TestSpool_SkipsCorruptLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	s := NewSpool(path)
	if err := s.Add(backend.Feedback{SuggestionText: "ok"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := s.Add(backend.Feedback{SuggestionText: "also ok"}); err != nil {
		t.Fatal(err)
	}

	records, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("pending = %d records, want 2 with the corrupt line skipped", len(records))
	}
}

func TestSpool_DrainDeliversAndClears(t *testing.T) {
	t.Parallel()
	s := tempSpool(t)
	s.Add(backend.Feedback{SuggestionText: "a"})
	s.Add(backend.Feedback{SuggestionText: "b"})

	client := &mock.Client{}
	delivered, err := s.Drain(context.Background(), client)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if n := len(client.CallsTo("feedback")); n != 2 {
		t.Errorf("feedback calls = %d, want 2", n)
	}

	records, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("spool not cleared after full drain: %d records", len(records))
	}
}

func TestSpool_DrainStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	s := tempSpool(t)
	s.Add(backend.Feedback{SuggestionText: "a"})
	s.Add(backend.Feedback{SuggestionText: "b"})
	s.Add(backend.Feedback{SuggestionText: "c"})

	wrapped := &failAfter{inner: &mock.Client{}, failFrom: 2}

	delivered, err := s.Drain(context.Background(), wrapped)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}

	records, pendErr := s.Pending()
	if pendErr != nil {
		t.Fatalf("Pending: %v", pendErr)
	}
	if len(records) != 2 {
		t.Fatalf("remaining = %d records, want 2", len(records))
	}
	if records[0].Feedback.SuggestionText != "b" {
		t.Errorf("first remaining record = %+v, want b", records[0].Feedback)
	}
}

// failAfter delegates to a mock client but fails TrackFeedback from the
// failFrom-th call onwards.
type failAfter struct {
	inner    *mock.Client
	calls    int
	failFrom int
}

func (f *failAfter) TrackFeedback(ctx context.Context, fb backend.Feedback) error {
	f.calls++
	if f.calls >= f.failFrom {
		return errors.New("service unavailable")
	}
	return f.inner.TrackFeedback(ctx, fb)
}

func (f *failAfter) OpenCompletionStream(ctx context.Context, prefix, locale string) (backend.Stream, error) {
	return f.inner.OpenCompletionStream(ctx, prefix, locale)
}

func (f *failAfter) Complete(ctx context.Context, prefix, locale string) (string, error) {
	return f.inner.Complete(ctx, prefix, locale)
}

func (f *failAfter) SubmitEdit(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error) {
	return f.inner.SubmitEdit(ctx, req)
}

func (f *failAfter) PreviewEdits(ctx context.Context, req backend.EditRequest) ([]string, error) {
	return f.inner.PreviewEdits(ctx, req)
}

func (f *failAfter) TranscribeAudio(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	return f.inner.TranscribeAudio(ctx, audio, mimeType, locale)
}

func (f *failAfter) StreamTranscribe(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
	return f.inner.StreamTranscribe(ctx, locale)
}
