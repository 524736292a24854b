package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/mock"
)

// fakeRecorder returns a scripted clip.
type fakeRecorder struct {
	audio []byte
	mime  string
	err   error
}

func (r *fakeRecorder) Record(ctx context.Context) ([]byte, string, error) {
	return r.audio, r.mime, r.err
}

// fakeSession is a scriptable backend.TranscriptionSession.
type fakeSession struct {
	mu      sync.Mutex
	audio   [][]byte
	results chan backend.TranscriptionResult
	once    sync.Once
}

var _ backend.TranscriptionSession = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{results: make(chan backend.TranscriptionResult, 16)}
}

func (s *fakeSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk)
	return nil
}

func (s *fakeSession) Results() <-chan backend.TranscriptionResult {
	return s.results
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}

func (s *fakeSession) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

func TestBridge_Dictate(t *testing.T) {
	t.Parallel()

	client := &mock.Client{TranscribeText: "make this more formal"}
	b := NewBridge(client, "en")

	u, err := b.Dictate(context.Background(), &fakeRecorder{audio: []byte{1, 2, 3}, mime: "audio/wav"})
	if err != nil {
		t.Fatalf("Dictate: %v", err)
	}
	if u.Text != "make this more formal" || !u.Final || u.IsCommand {
		t.Errorf("utterance = %+v, want final free text", u)
	}

	calls := client.CallsTo("transcribe")
	if len(calls) != 1 {
		t.Fatalf("transcribe calls = %d, want 1", len(calls))
	}
	if calls[0].Locale != "en" {
		t.Errorf("locale = %q, want en", calls[0].Locale)
	}
}

func TestBridge_DictateRecognisesCommand(t *testing.T) {
	t.Parallel()

	client := &mock.Client{TranscribeText: "accept suggestion"}
	b := NewBridge(client, "en")

	u, err := b.Dictate(context.Background(), &fakeRecorder{audio: []byte{1}, mime: "audio/wav"})
	if err != nil {
		t.Fatalf("Dictate: %v", err)
	}
	if !u.IsCommand || u.Command != CommandAccept {
		t.Errorf("utterance = %+v, want accept command", u)
	}
}

func TestBridge_DictateErrors(t *testing.T) {
	t.Parallel()

	b := NewBridge(&mock.Client{}, "en")

	if _, err := b.Dictate(context.Background(), &fakeRecorder{err: errors.New("mic busy")}); err == nil {
		t.Error("expected recorder error to propagate")
	}
	if _, err := b.Dictate(context.Background(), &fakeRecorder{mime: "audio/wav"}); err == nil {
		t.Error("expected empty recording to be rejected")
	}
}

func TestBridge_StreamDictation(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	client := &mock.Client{
		SessionHook: func(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
			return sess, nil
		},
	}
	b := NewBridge(client, "ru")

	chunks := make(chan []byte, 4)
	out, err := b.StreamDictation(context.Background(), chunks)
	if err != nil {
		t.Fatalf("StreamDictation: %v", err)
	}

	chunks <- []byte{1, 2}
	chunks <- []byte{3}
	sess.results <- backend.TranscriptionResult{Text: "accept sugg", Final: false}
	sess.results <- backend.TranscriptionResult{Text: "accept suggestion", Final: true}

	interim := <-out
	if interim.Final || interim.IsCommand || interim.Text != "accept sugg" {
		t.Errorf("interim = %+v, want unclassified interim text", interim)
	}

	final := <-out
	if !final.Final || !final.IsCommand || final.Command != CommandAccept {
		t.Errorf("final = %+v, want accept command", final)
	}

	close(chunks)
	select {
	case _, open := <-out:
		if open {
			t.Error("expected output channel to close after session end")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output channel did not close")
	}

	if sess.sent() != 2 {
		t.Errorf("session received %d chunks, want 2", sess.sent())
	}
}

func TestBridge_StreamDictationUnsupported(t *testing.T) {
	t.Parallel()

	b := NewBridge(&mock.Client{}, "en")

	_, err := b.StreamDictation(context.Background(), make(chan []byte))
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
