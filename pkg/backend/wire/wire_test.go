package wire

import (
	"strings"
	"testing"
)

func collect(frames []Frame) (tokens []string, terminal bool) {
	for _, f := range frames {
		if f.Terminal {
			terminal = true
			continue
		}
		tokens = append(tokens, f.Token)
	}
	return tokens, terminal
}

func TestDecoder_SingleChunk(t *testing.T) {
	t.Parallel()

	var d Decoder
	frames := d.Feed([]byte("data: ld\n\ndata:  there\n\ndata: [DONE]\n\n"))
	tokens, terminal := collect(frames)

	want := []string{"ld", " there"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %q, want %q", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
	if !terminal {
		t.Error("expected terminal frame")
	}
	if !d.Done() {
		t.Error("Done() = false after terminal frame")
	}
}

func TestDecoder_MultilineToken(t *testing.T) {
	t.Parallel()

	var d Decoder
	frames := d.Feed([]byte("data: first\ndata: second\n\ndata: [DONE]\n\n"))
	tokens, _ := collect(frames)
	if len(tokens) != 1 || tokens[0] != "first\nsecond" {
		t.Fatalf("tokens = %q, want [%q]", tokens, "first\nsecond")
	}
}

func TestDecoder_EmptyPayloadTerminates(t *testing.T) {
	t.Parallel()

	var d Decoder
	frames := d.Feed([]byte("data: a\n\ndata:\n\ndata: late\n\n"))
	tokens, terminal := collect(frames)
	if len(tokens) != 1 || tokens[0] != "a" {
		t.Fatalf("tokens = %q, want [a]", tokens)
	}
	if !terminal {
		t.Error("empty payload should terminate the stream")
	}
	if got := d.Feed([]byte("data: more\n\n")); got != nil {
		t.Errorf("Feed after terminal returned %v, want nil", got)
	}
}

func TestDecoder_MalformedLineSkipped(t *testing.T) {
	t.Parallel()

	var d Decoder
	frames := d.Feed([]byte("garbage line\ndata: ok\n\ndata: [DONE]\n\n"))
	tokens, terminal := collect(frames)
	if len(tokens) != 1 || tokens[0] != "ok" {
		t.Fatalf("tokens = %q, want [ok]", tokens)
	}
	if !terminal {
		t.Error("stream should still terminate after a malformed line")
	}
	if d.Malformed() != 1 {
		t.Errorf("Malformed() = %d, want 1", d.Malformed())
	}
}

func TestDecoder_KeepaliveCommentIgnored(t *testing.T) {
	t.Parallel()

	var d Decoder
	frames := d.Feed([]byte(": ping\n\ndata: x\n\n"))
	tokens, _ := collect(frames)
	if len(tokens) != 1 || tokens[0] != "x" {
		t.Fatalf("tokens = %q, want [x]", tokens)
	}
	if d.Malformed() != 0 {
		t.Errorf("Malformed() = %d, want 0", d.Malformed())
	}
}

func TestDecoder_FinishFlushesTrailingFrame(t *testing.T) {
	t.Parallel()

	var d Decoder
	if frames := d.Feed([]byte("data: trailing")); frames != nil {
		t.Fatalf("partial frame produced %v", frames)
	}
	tokens, _ := collect(d.Finish())
	if len(tokens) != 1 || tokens[0] != "trailing" {
		t.Fatalf("Finish tokens = %q, want [trailing]", tokens)
	}
}

// TestDecoder_SplitInvariant feeds the same serialized stream in every
// possible two-split and three-split partition and checks the reconstructed
// token sequence never changes.
func TestDecoder_SplitInvariant(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	wantTokens := []string{"ld", " there", "multi\nline", "."}
	for _, tok := range wantTokens {
		if err := WriteToken(&buf, tok); err != nil {
			t.Fatalf("WriteToken: %v", err)
		}
	}
	if err := WriteTerminal(&buf); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}
	serialized := buf.String()

	check := func(t *testing.T, chunks [][]byte) {
		t.Helper()
		var d Decoder
		var tokens []string
		terminal := false
		for _, c := range chunks {
			got, term := collect(d.Feed(c))
			tokens = append(tokens, got...)
			terminal = terminal || term
		}
		if !terminal {
			t.Fatalf("no terminal frame for chunks %q", chunks)
		}
		if len(tokens) != len(wantTokens) {
			t.Fatalf("tokens = %q, want %q", tokens, wantTokens)
		}
		for i := range wantTokens {
			if tokens[i] != wantTokens[i] {
				t.Fatalf("token[%d] = %q, want %q", i, tokens[i], wantTokens[i])
			}
		}
	}

	for i := 0; i <= len(serialized); i++ {
		check(t, [][]byte{[]byte(serialized[:i]), []byte(serialized[i:])})
	}
	for i := 0; i <= len(serialized); i += 3 {
		for j := i; j <= len(serialized); j += 5 {
			check(t, [][]byte{
				[]byte(serialized[:i]),
				[]byte(serialized[i:j]),
				[]byte(serialized[j:]),
			})
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	if err := WriteToken(&buf, "hello"); err != nil {
		t.Fatalf("WriteToken: %v", err)
	}
	if err := WriteTerminal(&buf); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	var d Decoder
	tokens, terminal := collect(d.Feed([]byte(buf.String())))
	if len(tokens) != 1 || tokens[0] != "hello" {
		t.Fatalf("tokens = %q, want [hello]", tokens)
	}
	if !terminal {
		t.Error("expected terminal frame")
	}
}
