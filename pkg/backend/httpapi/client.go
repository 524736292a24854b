// Package httpapi implements [backend.Client] against the assistant service's
// HTTP API.
//
// The service exposes versioned JSON endpoints under /api/v1: completion
// (single-shot and streamed), editing, voice transcription (bounded upload
// and a WebSocket streaming session), and suggestion feedback. Authentication
// is an optional API key sent in the X-API-Key header.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkravets/ghostline/pkg/backend"
)

const (
	apiPrefix    = "/api/v1"
	apiKeyHeader = "X-API-Key"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying [http.Client]. The default has no
// overall timeout because streaming responses outlive any fixed deadline;
// callers bound individual requests through their contexts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// Client talks to the assistant service over HTTP. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ backend.Client = (*Client)(nil)

// New creates a Client for the service at baseURL (scheme and host, no
// trailing slash required).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpapi: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpapi: base URL %q must use http or https", baseURL)
	}
	c := &Client{
		baseURL: u.String(),
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// completionRequest mirrors the service's CompletionRequest schema.
type completionRequest struct {
	CurrentText string `json:"current_text"`
	Language    string `json:"language"`
}

type completionResponse struct {
	Suggestion string `json:"suggestion"`
}

// editRequest mirrors the service's EditRequest schema.
type editRequest struct {
	SelectedText string `json:"selected_text"`
	Prompt       string `json:"prompt"`
	Language     string `json:"language"`
}

type editResponse struct {
	EditedText   string   `json:"edited_text"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives"`
	Warning      string   `json:"warning"`
}

type feedbackRequest struct {
	SuggestionText  string `json:"suggestion_text"`
	DocumentContext string `json:"document_context,omitempty"`
	WasAccepted     bool   `json:"was_accepted"`
	Source          string `json:"source"`
	Language        string `json:"language"`
}

// Complete implements backend.Client.
func (c *Client) Complete(ctx context.Context, prefix, locale string) (string, error) {
	var out completionResponse
	err := c.postJSON(ctx, apiPrefix+"/completion/", completionRequest{
		CurrentText: prefix,
		Language:    locale,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Suggestion, nil
}

// SubmitEdit implements backend.Client.
func (c *Client) SubmitEdit(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error) {
	var out editResponse
	err := c.postJSON(ctx, apiPrefix+"/editing/", editRequest{
		SelectedText: req.SelectedText,
		Prompt:       req.Instruction,
		Language:     req.Locale,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &backend.EditResult{
		ReplacementText: out.EditedText,
		Confidence:      out.Confidence,
		Alternatives:    out.Alternatives,
		Warning:         out.Warning,
	}, nil
}

// PreviewEdits implements backend.Client.
func (c *Client) PreviewEdits(ctx context.Context, req backend.EditRequest) ([]string, error) {
	var out []string
	err := c.postJSON(ctx, apiPrefix+"/editing/preview", editRequest{
		SelectedText: req.SelectedText,
		Prompt:       req.Instruction,
		Language:     req.Locale,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TrackFeedback implements backend.Client.
func (c *Client) TrackFeedback(ctx context.Context, fb backend.Feedback) error {
	return c.postJSON(ctx, apiPrefix+"/feedback/track-suggestion", feedbackRequest{
		SuggestionText:  fb.SuggestionText,
		DocumentContext: fb.SurroundingContext,
		WasAccepted:     fb.WasAccepted,
		Source:          fb.Source,
		Language:        fb.Locale,
	}, nil)
}

// postJSON issues a JSON POST and decodes the response into out (skipped when
// out is nil).
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("httpapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: %s: %w: %w", path, backend.ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(path, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpapi: %s: decode response: %w: %w", path, backend.ErrProtocol, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// checkStatus maps a non-2xx response to the error taxonomy: server-side and
// throttling failures are transport errors (the request may succeed later),
// other client errors are protocol errors.
func checkStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail := readErrorDetail(resp.Body)
	kind := backend.ErrProtocol
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		kind = backend.ErrTransport
	}
	if detail != "" {
		return fmt.Errorf("httpapi: %s: status %d: %s: %w", path, resp.StatusCode, detail, kind)
	}
	return fmt.Errorf("httpapi: %s: status %d: %w", path, resp.StatusCode, kind)
}

// readErrorDetail extracts FastAPI's {"detail": ...} error body, if present.
func readErrorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return ""
}
