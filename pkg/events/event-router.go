package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/helpers"
)

// ChatEventHandler receives the decoded events of a reply stream.
type ChatEventHandler interface {
	HandleStart(ctx context.Context, e *EventStart) error
	HandlePartialCompletion(ctx context.Context, e *EventPartialCompletion) error
	HandleFinal(ctx context.Context, e *EventFinal) error
	HandleError(ctx context.Context, e *EventError) error
	HandleInterrupt(ctx context.Context, e *EventInterrupt) error
}

type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = helpers.NewWatermill(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

// Close closes the publisher then the router. Errors are logged, not returned.
func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}

	log.Debug().Msg("Closing router")
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	log.Debug().Msg("Router closed")

	return nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// AddChatHandler dispatches the events of topic to handler.
func (e *EventRouter) AddChatHandler(name string, topic string, handler ChatEventHandler) {
	e.AddHandler(name, topic, ChatDispatchHandler(handler))
}

// ChatDispatchHandler parses chat events and dispatches them to the matching
// method of handler. Undecodable messages are logged and skipped.
func ChatDispatchHandler(handler ChatEventHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Str("message_id", msg.UUID).Err(err).Msg("Failed to parse chat event from message payload")
			return nil
		}

		ctx := msg.Context()
		switch ev := e.(type) {
		case *EventStart:
			err = handler.HandleStart(ctx, ev)
		case *EventPartialCompletion:
			err = handler.HandlePartialCompletion(ctx, ev)
		case *EventFinal:
			err = handler.HandleFinal(ctx, ev)
		case *EventError:
			err = handler.HandleError(ctx, ev)
		case *EventInterrupt:
			err = handler.HandleInterrupt(ctx, ev)
		}
		if err != nil {
			log.Error().Str("message_id", msg.UUID).Str("event_type", string(e.Type())).Err(err).Msg("Error processing chat event")
			return err
		}
		return nil
	}
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
