// Package chat drives one exchange: it commits the user message, streams the
// reply from a reply.Source and commits the answer, a partial answer or a
// transient error to the registry.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/catalog"
	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/events"
	"github.com/go-go-golems/locus/pkg/registry"
	"github.com/go-go-golems/locus/pkg/reply"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrMissingAPIKey = errors.New("missing OpenRouter API key")
	ErrBusy          = errors.New("a reply is already streaming")
)

// MissingAPIKeyMessage is the transient error shown when sending without a key.
const MissingAPIKeyMessage = "Please set your OpenRouter API key in settings"

// Controller is safe for concurrent use, but runs at most one stream at a time.
type Controller struct {
	registry  *registry.Registry
	catalog   *catalog.Catalog
	source    reply.Source
	publisher *events.PublisherManager
	counter   TokenCounter

	// keyRequired is false for sources that run without credentials.
	keyRequired bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

type Option func(*Controller)

// WithPublisher publishes the stream events of every exchange.
func WithPublisher(publisher *events.PublisherManager) Option {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Controller) {
		c.counter = counter
	}
}

func WithAPIKeyRequired(required bool) Option {
	return func(c *Controller) {
		c.keyRequired = required
	}
}

func NewController(r *registry.Registry, cat *catalog.Catalog, source reply.Source, options ...Option) *Controller {
	ret := &Controller{
		registry: r,
		catalog:  cat,
		source:   source,
		counter:  NewTiktokenCounter(),

		keyRequired: true,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Result describes a finished exchange.
type Result struct {
	ConversationID conversation.ConversationID
	UserMessageID  conversation.MessageID
	// ReplyMessageID is NullMessage when nothing was committed.
	ReplyMessageID conversation.MessageID
	Model          string
	Interrupted    bool
}

// Send commits content as a user message to the active conversation, creating
// one when none is active, and streams the reply. It blocks until the stream
// ends. A cancelled stream is not an error: whatever was received is committed
// and Result.Interrupted is set.
func (c *Controller) Send(ctx context.Context, content string, mode conversation.Mode) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	session := c.registry.Session()
	if c.keyRequired && session.APIKey == "" {
		c.registry.SetError(MissingAPIKeyMessage)
		return nil, ErrMissingAPIKey
	}
	if !c.registry.TryStartLoading() {
		return nil, ErrBusy
	}
	defer c.registry.SetLoading(false)

	if c.registry.ActiveID().IsNull() {
		c.registry.CreateConversation()
	}
	model := c.catalog.OptimalModel(mode, session.SelectedModel)
	if model.ID != session.SelectedModel {
		log.Debug().
			Str("selected", session.SelectedModel).
			Str("model", model.ID).
			Str("mode", string(mode)).
			Msg("substituting model for mode")
	}

	userID, err := c.registry.AddMessage(conversation.RoleUser, content)
	if err != nil {
		return nil, errors.Wrap(err, "could not add user message")
	}
	c.registry.SetError("")

	ret := &Result{
		ConversationID: c.registry.ActiveID(),
		UserMessageID:  userID,
		ReplyMessageID: conversation.NullMessage,
		Model:          model.ID,
	}

	history := c.registry.History()
	c.warnOnContextSize(history, model)

	ctx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer func() {
		c.setCancel(nil)
		cancel()
	}()

	meta := events.EventMetadata{
		ConversationID: ret.ConversationID,
		NodeID:         c.registry.CurrentNode().ID,
		Model:          model.ID,
		Mode:           mode,
	}
	c.publish(events.NewStartEvent(meta))

	var (
		partial    strings.Builder
		completion *reply.Completion
		streamErr  error
	)
	c.source.Stream(ctx, reply.Request{
		Messages: history,
		Model:    model.ID,
		APIKey:   session.APIKey,
		Mode:     mode,
	}, reply.Callbacks{
		OnToken: func(token string) {
			partial.WriteString(token)
			c.publish(events.NewPartialCompletionEvent(meta, token, partial.String()))
		},
		OnComplete: func(r reply.Completion) {
			completion = &r
		},
		OnError: func(err error) {
			streamErr = err
		},
	})

	switch {
	case completion != nil:
		ret.ReplyMessageID, err = c.registry.AddMessage(conversation.RoleAssistant, completion.Text,
			conversation.WithModelID(model.ID),
			conversation.WithMode(mode),
			conversation.WithSources(completion.Sources),
			conversation.WithThinking(completion.Thinking))
		if err != nil {
			return ret, errors.Wrap(err, "could not add reply")
		}
		c.publish(events.NewFinalEvent(meta, completion.Text, completion.Thinking, completion.Sources))
		return ret, nil

	case errors.Is(streamErr, context.Canceled):
		ret.Interrupted = true
		ret.ReplyMessageID = c.commitPartial(partial.String(), model.ID, mode)
		c.publish(events.NewInterruptEvent(meta, partial.String()))
		log.Debug().Str("conversation_id", ret.ConversationID.String()).Msg("reply interrupted")
		return ret, nil

	default:
		if streamErr == nil {
			streamErr = errors.New("stream ended without a result")
		}
		ret.ReplyMessageID = c.commitPartial(partial.String(), model.ID, mode)
		c.registry.SetError(streamErr.Error())
		c.publish(events.NewErrorEvent(meta, streamErr, partial.String()))
		log.Warn().Err(streamErr).Str("model", model.ID).Msg("reply stream failed")
		return ret, streamErr
	}
}

// Stop cancels the running stream, if any. It reports whether one was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

func (c *Controller) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
}

func (c *Controller) commitPartial(text string, modelID string, mode conversation.Mode) conversation.MessageID {
	if text == "" {
		return conversation.NullMessage
	}
	id, err := c.registry.AddMessage(conversation.RoleAssistant, text,
		conversation.WithModelID(modelID),
		conversation.WithMode(mode))
	if err != nil {
		log.Error().Err(err).Msg("could not commit partial reply")
		return conversation.NullMessage
	}
	return id
}

func (c *Controller) publish(e events.Event) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishBlind(e)
}
