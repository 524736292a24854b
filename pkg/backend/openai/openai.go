// Package openai implements [backend.Client] directly against the OpenAI API.
//
// It is a degraded bypass for when the assistant service is unreachable for
// an extended period: completions and edits go straight to a chat model
// without retrieval context, and the voice endpoints are unavailable. The
// wire format of the assistant service never appears here; the OpenAI SDK's
// own streaming is adapted to [backend.Stream].
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/pkravets/ghostline/pkg/backend"
)

const defaultModel = "gpt-4o-mini"

// bypassWarning is attached to every edit result so the presentation layer
// can tell users the answer skipped the assistant service.
const bypassWarning = "generated without document context"

// Option is a functional option for configuring the Client.
type Option func(*config)

type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL, for use with
// API-compatible local inference servers.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Client implements backend.Client against the OpenAI API. Safe for
// concurrent use.
type Client struct {
	client oai.Client
	model  string
}

var _ backend.Client = (*Client)(nil)

// New constructs a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// OpenCompletionStream implements backend.Client.
func (c *Client) OpenCompletionStream(ctx context.Context, prefix, locale string) (backend.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.completionParams(prefix, locale))
	if err := stream.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("openai: start stream: %w: %w", backend.ErrTransport, err)
	}

	s := &chatStream{
		cancel: cancel,
		events: make(chan backend.TokenEvent, 16),
	}
	go func() {
		defer close(s.events)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case s.events <- backend.TokenEvent{Token: text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.events <- backend.TokenEvent{
				Err: fmt.Errorf("openai: stream: %w: %w", backend.ErrTransport, err),
			}
			return
		}
		s.events <- backend.TokenEvent{Done: true}
	}()
	return s, nil
}

// chatStream adapts the SDK's streaming iterator to backend.Stream.
type chatStream struct {
	cancel context.CancelFunc
	events chan backend.TokenEvent
	once   sync.Once
}

var _ backend.Stream = (*chatStream)(nil)

// Events implements backend.Stream.
func (s *chatStream) Events() <-chan backend.TokenEvent { return s.events }

// Close implements backend.Stream. Idempotent.
func (s *chatStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Complete implements backend.Client.
func (c *Client) Complete(ctx context.Context, prefix, locale string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.completionParams(prefix, locale))
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w: %w", backend.ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response: %w", backend.ErrProtocol)
	}
	return resp.Choices[0].Message.Content, nil
}

// SubmitEdit implements backend.Client. Confidence is not available from a
// bare chat completion, so results carry a warning instead.
func (c *Client) SubmitEdit(ctx context.Context, req backend.EditRequest) (*backend.EditResult, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.editParams(req, 1))
	if err != nil {
		return nil, fmt.Errorf("openai: edit: %w: %w", backend.ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response: %w", backend.ErrProtocol)
	}
	return &backend.EditResult{
		ReplacementText: strings.TrimSpace(resp.Choices[0].Message.Content),
		Warning:         bypassWarning,
	}, nil
}

// PreviewEdits implements backend.Client. Candidates come from sampling
// multiple choices of one request.
func (c *Client) PreviewEdits(ctx context.Context, req backend.EditRequest) ([]string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.editParams(req, 3))
	if err != nil {
		return nil, fmt.Errorf("openai: preview: %w: %w", backend.ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response: %w", backend.ErrProtocol)
	}
	seen := make(map[string]bool, len(resp.Choices))
	var alts []string
	for _, ch := range resp.Choices {
		text := strings.TrimSpace(ch.Message.Content)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		alts = append(alts, text)
	}
	return alts, nil
}

// TranscribeAudio implements backend.Client. The bypass has no speech stack.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	return "", fmt.Errorf("openai: transcription in bypass mode: %w", backend.ErrUnsupported)
}

// StreamTranscribe implements backend.Client.
func (c *Client) StreamTranscribe(ctx context.Context, locale string) (backend.TranscriptionSession, error) {
	return nil, fmt.Errorf("openai: streaming transcription in bypass mode: %w", backend.ErrUnsupported)
}

// TrackFeedback implements backend.Client. Feedback only means something to
// the assistant service, so the bypass drops it.
func (c *Client) TrackFeedback(ctx context.Context, fb backend.Feedback) error {
	return nil
}

func (c *Client) completionParams(prefix, locale string) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(completionSystemPrompt(locale)),
			oai.UserMessage(prefix),
		},
		Temperature:         param.NewOpt(0.3),
		MaxCompletionTokens: param.NewOpt(int64(128)),
	}
}

func (c *Client) editParams(req backend.EditRequest, n int) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(editSystemPrompt(req.Locale)),
			oai.UserMessage(fmt.Sprintf("Instruction: %s\n\nText:\n%s", req.Instruction, req.SelectedText)),
		},
		Temperature: param.NewOpt(0.7),
	}
	if n > 1 {
		params.N = param.NewOpt(int64(n))
	}
	return params
}

func completionSystemPrompt(locale string) string {
	return fmt.Sprintf("You continue the user's text. Respond only with the continuation, "+
		"no preamble and no quotation marks. Write in the language tagged %q.", locale)
}

func editSystemPrompt(locale string) string {
	return fmt.Sprintf("You rewrite the given text according to the instruction. Respond only "+
		"with the rewritten text, no preamble and no quotation marks. Write in the language tagged %q.", locale)
}
