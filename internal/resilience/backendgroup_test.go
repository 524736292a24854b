package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/mock"
)

func testFallbackConfig() FallbackConfig {
	return FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
			HalfOpenMax:  1,
		},
	}
}

func TestBackendGroup_PrimaryServes(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{CompleteText: "from primary"}
	secondary := &mock.Client{CompleteText: "from secondary"}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	got, err := g.Complete(context.Background(), "Hello wor", "en")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "from primary" {
		t.Errorf("completion = %q, want primary's", got)
	}
	if n := len(secondary.Calls()); n != 0 {
		t.Errorf("secondary received %d calls while primary is healthy", n)
	}
}

func TestBackendGroup_FailsOverToSecondary(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{CompleteErr: errors.New("boom")}
	secondary := &mock.Client{CompleteText: "from secondary"}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	got, err := g.Complete(context.Background(), "Hello wor", "en")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "from secondary" {
		t.Errorf("completion = %q, want secondary's", got)
	}
}

func TestBackendGroup_StreamEstablishmentFailsOver(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{StreamErr: errors.New("connect refused")}
	secondary := &mock.Client{StreamTokens: []string{"ld"}}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	s, err := g.OpenCompletionStream(context.Background(), "Hello wor", "en")
	if err != nil {
		t.Fatalf("OpenCompletionStream: %v", err)
	}
	defer s.Close()

	ev, ok := <-s.Events()
	if !ok || ev.Token != "ld" {
		t.Errorf("first event = %+v, want token ld from secondary", ev)
	}
}

func TestBackendGroup_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{CompleteErr: errors.New("boom")}
	secondary := &mock.Client{CompleteText: "ok"}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	for i := 0; i < 3; i++ {
		if _, err := g.Complete(context.Background(), "Hello wor", "en"); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}

	// MaxFailures is 2, so the third round must have skipped the primary.
	if n := len(primary.CallsTo("complete")); n != 2 {
		t.Errorf("primary complete calls = %d, want 2 (breaker open afterwards)", n)
	}
	if n := len(secondary.CallsTo("complete")); n != 3 {
		t.Errorf("secondary complete calls = %d, want 3", n)
	}
}

func TestBackendGroup_AllFailed(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{CompleteErr: errors.New("boom")}
	secondary := &mock.Client{CompleteErr: errors.New("also boom")}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	_, err := g.Complete(context.Background(), "Hello wor", "en")
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}

func TestBackendGroup_UnsupportedTranscriptionFailsFast(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{TranscribeErr: backend.ErrUnsupported}
	secondary := &mock.Client{TranscribeText: "privet"}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	got, err := g.TranscribeAudio(context.Background(), []byte{1, 2}, "audio/webm", "ru")
	if err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if got != "privet" {
		t.Errorf("transcript = %q, want secondary's", got)
	}
}

func TestBackendGroup_FeedbackOnlyToPrimary(t *testing.T) {
	t.Parallel()
	primary := &mock.Client{FeedbackErr: errors.New("down")}
	secondary := &mock.Client{}

	g := NewBackendGroup(primary, "primary", testFallbackConfig())
	g.AddFallback("secondary", secondary)

	err := g.TrackFeedback(context.Background(), backend.Feedback{SuggestionText: "x"})
	if err == nil {
		t.Fatal("expected delivery error from primary")
	}
	if n := len(secondary.CallsTo("feedback")); n != 0 {
		t.Errorf("feedback was retried on the fallback: %d calls", n)
	}
}
