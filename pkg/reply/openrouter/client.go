// Package openrouter streams replies from the OpenRouter chat completions API
// through its OpenAI-compatible endpoint.
package openrouter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/reply"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultReferer = "https://github.com/go-go-golems/locus"
	DefaultTitle   = "Locus"

	reasoningEffortHigh = "high"
)

var ErrNoAPIKey = errors.New("no API key")

type Client struct {
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client
}

var _ reply.Source = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithReferer(referer string) Option {
	return func(c *Client) {
		c.referer = referer
	}
}

func WithTitle(title string) Option {
	return func(c *Client) {
		c.title = title
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(options ...Option) *Client {
	ret := &Client{
		baseURL:    DefaultBaseURL,
		referer:    DefaultReferer,
		title:      DefaultTitle,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// headerTransport adds the attribution headers OpenRouter asks for.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func (c *Client) makeClient(apiKey string) *go_openai.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := *c.httpClient
	httpClient.Transport = &headerTransport{
		base: base,
		headers: map[string]string{
			"HTTP-Referer": c.referer,
			"X-Title":      c.title,
		},
	}

	config := go_openai.DefaultConfig(apiKey)
	config.BaseURL = c.baseURL
	config.HTTPClient = &httpClient
	return go_openai.NewClientWithConfig(config)
}

func makeCompletionRequest(req reply.Request) go_openai.ChatCompletionRequest {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	ret := go_openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	switch req.Mode {
	case conversation.ModeDeepThink:
		ret.ReasoningEffort = reasoningEffortHigh
	case conversation.ModeWebSearch:
		ret.Tools = webSearchTools()
		ret.ToolChoice = "auto"
	}
	return ret
}

// Stream sends the request and relays the streamed reply. Reasoning deltas are
// collected as thinking text in deep-think mode only.
func (c *Client) Stream(ctx context.Context, req reply.Request, callbacks reply.Callbacks) {
	if req.APIKey == "" {
		callbacks.Error(ErrNoAPIKey)
		return
	}

	client := c.makeClient(req.APIKey)
	stream, err := client.CreateChatCompletionStream(ctx, makeCompletionRequest(req))
	if err != nil {
		if ctx.Err() != nil {
			callbacks.Error(ctx.Err())
			return
		}
		callbacks.Error(describeError(err))
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	log.Debug().Str("model", req.Model).Str("mode", string(req.Mode)).Int("messages", len(req.Messages)).Msg("stream started")

	var text, thinking strings.Builder
	merger := newToolCallMerger()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			callbacks.Complete(reply.Completion{
				Text:     text.String(),
				Thinking: thinking.String(),
				Sources:  merger.sources(),
			})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				callbacks.Error(ctx.Err())
				return
			}
			callbacks.Error(describeError(err))
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.ReasoningContent != "" && req.Mode == conversation.ModeDeepThink {
			thinking.WriteString(delta.ReasoningContent)
		} else if delta.Content != "" {
			text.WriteString(delta.Content)
			callbacks.Token(delta.Content)
		}
		if len(delta.ToolCalls) > 0 {
			merger.add(delta.ToolCalls)
		}
	}
}

// describeError surfaces the provider's message when there is one.
func describeError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		return fmt.Errorf("API error: %d", apiErr.HTTPStatusCode)
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("API error: %d", reqErr.HTTPStatusCode)
	}
	return err
}
