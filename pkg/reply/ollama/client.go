// Package ollama streams replies from a local Ollama server. The server address
// is taken from OLLAMA_HOST, as the ollama CLI does.
package ollama

import (
	"context"
	"strings"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/reply"
)

type Client struct {
	client  *api.Client
	options map[string]interface{}
}

var _ reply.Source = (*Client)(nil)

type Option func(*Client)

// WithOptions sets the model options (temperature, num_ctx, ...) sent with
// every request.
func WithOptions(options map[string]interface{}) Option {
	return func(c *Client) {
		c.options = options
	}
}

func New(client *api.Client, options ...Option) *Client {
	ret := &Client{client: client}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func NewFromEnvironment(options ...Option) (*Client, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return New(client, options...), nil
}

func makeChatRequest(req reply.Request, options map[string]interface{}) *api.ChatRequest {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	stream := true
	return &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

// messageContent reads the content of a response. Depending on the client
// release, Message is a value or a pointer that is nil on the final response.
func messageContent(resp api.ChatResponse) string {
	switch m := any(resp.Message).(type) {
	case *api.Message:
		if m != nil {
			return m.Content
		}
	case api.Message:
		return m.Content
	}
	return ""
}

// Stream relays the streamed reply. Ollama has no reasoning or search
// options, other modes are sent as standard requests.
func (c *Client) Stream(ctx context.Context, req reply.Request, callbacks reply.Callbacks) {
	if req.Mode != conversation.ModeStandard {
		log.Debug().Str("mode", string(req.Mode)).Msg("ollama serves every mode as standard")
	}
	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("stream started")

	var text strings.Builder
	done := false
	err := c.client.Chat(ctx, makeChatRequest(req, c.options), func(resp api.ChatResponse) error {
		if content := messageContent(resp); content != "" {
			text.WriteString(content)
			callbacks.Token(content)
		}
		if resp.Done {
			done = true
		}
		return nil
	})

	switch {
	case ctx.Err() != nil:
		callbacks.Error(ctx.Err())
	case err != nil:
		callbacks.Error(describeError(err))
	case !done:
		callbacks.Error(errors.New("ollama stream ended before the reply was done"))
	default:
		callbacks.Complete(reply.Completion{Text: text.String()})
	}
}

func describeError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return errors.Errorf("ollama error %d: %s", statusErr.StatusCode, statusErr.ErrorMessage)
	}
	return errors.Wrap(err, "ollama request failed")
}
