package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/pkravets/ghostline/pkg/backend"
)

// TranscribeAudio implements backend.Client. The recording goes up as a
// multipart file upload; the service answers with the formatted transcript.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreatePart(fileHeader(mimeType))
	if err != nil {
		return "", fmt.Errorf("httpapi: build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("httpapi: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("httpapi: build upload: %w", err)
	}

	u := c.baseURL + apiPrefix + "/voice/transcribe?language=" + url.QueryEscape(locale)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return "", fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpapi: transcribe: %w: %w", backend.ErrTransport, err)
	}
	defer resp.Body.Close()
	if err := checkStatus("/voice/transcribe", resp); err != nil {
		return "", err
	}

	var out struct {
		Text    string `json:"text"`
		IsFinal bool   `json:"is_final"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("httpapi: decode transcript: %w: %w", backend.ErrProtocol, err)
	}
	return out.Text, nil
}

func fileHeader(mimeType string) map[string][]string {
	return map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="recording"`},
		"Content-Type":        {mimeType},
	}
}

// StreamTranscribe implements backend.Client. It dials the service's
// WebSocket transcription endpoint: binary audio chunks go up, JSON
// transcription results come down.
func (c *Client) StreamTranscribe(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
	wsURL, err := c.transcribeURL(locale)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set(apiKeyHeader, c.apiKey)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: dial transcription: %w: %w", backend.ErrTransport, err)
	}

	sess := &wsSession{
		conn:    conn,
		results: make(chan backend.TranscriptionResult, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

func (c *Client) transcribeURL(locale string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("httpapi: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + apiPrefix + "/voice/stream-transcribe"
	q := u.Query()
	q.Set("language", locale)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// wsSession is a live streaming transcription session.
type wsSession struct {
	conn    *websocket.Conn
	results chan backend.TranscriptionResult
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ backend.TranscriptionSession = (*wsSession)(nil)

// SendAudio implements backend.TranscriptionSession.
func (s *wsSession) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("httpapi: transcription session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("httpapi: transcription session is closed")
	}
}

// Results implements backend.TranscriptionSession.
func (s *wsSession) Results() <-chan backend.TranscriptionResult { return s.results }

// Close implements backend.TranscriptionSession. Closing the connection
// first unblocks the read loop; only then is it safe to wait on the loops.
func (s *wsSession) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop drains the audio channel into binary WebSocket messages.
func (s *wsSession) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON results and forwards them until the connection or
// session ends. It owns the results channel.
func (s *wsSession) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var out struct {
			Text    string `json:"text"`
			IsFinal bool   `json:"is_final"`
		}
		if err := json.Unmarshal(msg, &out); err != nil || out.Text == "" {
			continue
		}

		select {
		case s.results <- backend.TranscriptionResult{Text: out.Text, Final: out.IsFinal}:
		case <-s.done:
		}
	}
}
