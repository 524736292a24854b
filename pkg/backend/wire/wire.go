// Package wire implements the textual framing ghostline uses for streamed
// completions.
//
// A stream is a sequence of frames separated by a blank line. Each frame is
// made of lines beginning with the "data:" prefix; the payloads of a frame's
// data lines are joined with newlines to reconstruct tokens that themselves
// contain line breaks. A frame whose payload is empty, or whose payload equals
// the terminal marker, ends the stream. Lines starting with ":" are keepalive
// comments and are ignored.
//
// The Decoder is incremental and makes no assumption about how the byte
// stream is chunked: a frame (or even a single byte of the delimiter) may be
// split across any number of Feed calls and the reconstructed frame sequence
// is identical.
package wire

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	// DataPrefix starts every payload-carrying line of a frame.
	DataPrefix = "data:"

	// TerminalMarker is the dedicated end-of-stream payload.
	TerminalMarker = "[DONE]"

	// frameDelimiter separates frames on the wire.
	frameDelimiter = "\n\n"
)

// Frame is one decoded unit of the stream. A frame carries at most one token.
type Frame struct {
	// Token is the reconstructed payload. Empty for terminal frames.
	Token string

	// Terminal is true when this frame ends the stream.
	Terminal bool
}

// Decoder incrementally reassembles frames from arbitrarily chunked bytes.
// The zero value is ready to use. Decoder is not safe for concurrent use.
type Decoder struct {
	buf       []byte
	done      bool
	malformed int
}

// Feed appends p to the internal buffer and returns all frames completed by
// it, in order. Frames arriving after the terminal frame are dropped.
// Malformed lines inside a frame are counted and skipped; they never abort
// the stream.
func (d *Decoder) Feed(p []byte) []Frame {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var frames []Frame
	for {
		idx := bytes.Index(d.buf, []byte(frameDelimiter))
		if idx < 0 {
			break
		}
		raw := string(d.buf[:idx])
		d.buf = d.buf[idx+len(frameDelimiter):]

		f, ok := d.parseFrame(raw)
		if !ok {
			continue
		}
		frames = append(frames, f)
		if f.Terminal {
			d.done = true
			d.buf = nil
			break
		}
	}
	return frames
}

// Finish flushes a trailing partial frame that was never followed by a
// delimiter. It is called when the transport reports EOF so a final token is
// not lost to a missing blank line.
func (d *Decoder) Finish() []Frame {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	raw := string(d.buf)
	d.buf = nil
	d.done = true
	if f, ok := d.parseFrame(raw); ok {
		return []Frame{f}
	}
	return nil
}

// Done reports whether a terminal frame has been decoded.
func (d *Decoder) Done() bool { return d.done }

// Malformed returns the number of lines skipped because they carried neither
// a data prefix nor a comment marker.
func (d *Decoder) Malformed() int { return d.malformed }

// parseFrame reconstructs one frame from its raw (delimiter-stripped) text.
// Returns ok=false for frames with no payload lines at all (pure keepalive).
func (d *Decoder) parseFrame(raw string) (Frame, bool) {
	var payloads []string
	sawData := false
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, DataPrefix):
			payload := strings.TrimPrefix(line, DataPrefix)
			payload = strings.TrimPrefix(payload, " ")
			payloads = append(payloads, payload)
			sawData = true
		case strings.HasPrefix(line, ":"), line == "":
			// Keepalive comment or stray blank; ignore.
		default:
			d.malformed++
		}
	}
	if !sawData {
		return Frame{}, false
	}
	token := strings.Join(payloads, "\n")
	if token == "" || token == TerminalMarker {
		return Frame{Terminal: true}, true
	}
	return Frame{Token: token}, true
}

// WriteToken encodes one token as a frame. Tokens containing newlines are
// split across multiple data lines so the blank-line delimiter stays
// unambiguous.
func WriteToken(w io.Writer, token string) error {
	var b strings.Builder
	for _, line := range strings.Split(token, "\n") {
		b.WriteString(DataPrefix)
		b.WriteString(" ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("wire: write token frame: %w", err)
	}
	return nil
}

// WriteTerminal encodes the end-of-stream frame.
func WriteTerminal(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s %s\n\n", DataPrefix, TerminalMarker); err != nil {
		return fmt.Errorf("wire: write terminal frame: %w", err)
	}
	return nil
}
