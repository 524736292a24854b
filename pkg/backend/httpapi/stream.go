package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/wire"
)

// OpenCompletionStream implements backend.Client. The service responds with
// token frames in the blank-line-delimited "data:" format decoded by the
// wire package; network chunk boundaries carry no meaning.
//
// An error return means the stream could not be established (the request
// failed or the service answered non-2xx). After establishment, failures
// surface as a TokenEvent with Err set.
func (c *Client) OpenCompletionStream(ctx context.Context, prefix, locale string) (backend.Stream, error) {
	body, err := json.Marshal(completionRequest{
		CurrentText: prefix,
		Language:    locale,
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: encode request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+apiPrefix+"/completion/stream", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("httpapi: open completion stream: %w: %w", backend.ErrTransport, err)
	}
	if err := checkStatus("/completion/stream", resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	s := &httpStream{
		body:   resp.Body,
		cancel: cancel,
		events: make(chan backend.TokenEvent, 16),
	}
	go s.readLoop()
	return s, nil
}

// httpStream adapts a streaming HTTP response body to backend.Stream.
type httpStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	events chan backend.TokenEvent

	once sync.Once
}

var _ backend.Stream = (*httpStream)(nil)

// Events implements backend.Stream.
func (s *httpStream) Events() <-chan backend.TokenEvent { return s.events }

// Close implements backend.Stream. Idempotent.
func (s *httpStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.body.Close()
	})
	return nil
}

// readLoop feeds body chunks through the frame decoder and forwards token
// events. It owns the events channel and closes it on exit.
func (s *httpStream) readLoop() {
	defer close(s.events)
	defer s.Close()

	var dec wire.Decoder
	defer func() {
		if n := dec.Malformed(); n > 0 {
			slog.Debug("httpapi: malformed stream lines skipped", "count", n)
		}
	}()
	buf := make([]byte, 4096)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			if done := s.emit(dec.Feed(buf[:n])); done {
				return
			}
		}
		if err != nil {
			if done := s.emit(dec.Finish()); done {
				return
			}
			if err == io.EOF {
				// A clean close counts as completion; the decoder already
				// flushed any trailing partial frame.
				s.events <- backend.TokenEvent{Done: true}
				return
			}
			s.events <- backend.TokenEvent{
				Err: fmt.Errorf("httpapi: read stream: %w: %w", backend.ErrTransport, err),
			}
			return
		}
	}
}

// emit forwards decoded frames and reports whether a terminal frame was
// seen, in which case the Done event has already been sent.
func (s *httpStream) emit(frames []wire.Frame) bool {
	for _, f := range frames {
		if f.Terminal {
			s.events <- backend.TokenEvent{Done: true}
			return true
		}
		s.events <- backend.TokenEvent{Token: f.Token}
	}
	return false
}
