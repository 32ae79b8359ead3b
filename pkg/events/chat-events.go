package events

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/locus/pkg/conversation"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"
	EventTypeInterrupt         EventType = "interrupt"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

// EventMetadata identifies the stream an event belongs to.
type EventMetadata struct {
	ConversationID conversation.ConversationID `json:"conversation_id"`
	NodeID         conversation.NodeID         `json:"node_id"`
	Model          string                      `json:"model,omitempty"`
	Mode           conversation.Mode           `json:"mode,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("conversation_id", em.ConversationID.String())
	e.Str("node_id", em.NodeID.String())
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.Mode != "" {
		e.Str("mode", string(em.Mode))
	}
}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
	}
}

var _ Event = &EventStart{}

// EventPartialCompletion carries one streamed token and the text so far.
type EventPartialCompletion struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartialCompletion{}

type EventFinal struct {
	EventImpl
	Text     string                      `json:"text"`
	Thinking string                      `json:"thinking,omitempty"`
	Sources  []conversation.SearchResult `json:"sources,omitempty"`
}

func NewFinalEvent(metadata EventMetadata, text string, thinking string, sources []conversation.SearchResult) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
		Thinking:  thinking,
		Sources:   sources,
	}
}

var _ Event = &EventFinal{}

// EventError reports a failed stream. Text holds whatever had streamed in
// before the failure.
type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
	Text        string `json:"text,omitempty"`
}

func NewErrorEvent(metadata EventMetadata, err error, text string) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
		Text:        text,
	}
}

var _ Event = &EventError{}

type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventInterrupt{}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}

	return ret, true
}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		ret, ok := ToTypedEvent[EventStart](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventStart")
		}
		ret.payload = b
		return ret, nil
	case EventTypePartialCompletion:
		ret, ok := ToTypedEvent[EventPartialCompletion](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventPartialCompletion")
		}
		ret.payload = b
		return ret, nil
	case EventTypeFinal:
		ret, ok := ToTypedEvent[EventFinal](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventFinal")
		}
		ret.payload = b
		return ret, nil
	case EventTypeError:
		ret, ok := ToTypedEvent[EventError](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventError")
		}
		ret.payload = b
		return ret, nil
	case EventTypeInterrupt:
		ret, ok := ToTypedEvent[EventInterrupt](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventInterrupt")
		}
		ret.payload = b
		return ret, nil
	}

	return e, fmt.Errorf("unknown event type: %s", e.Type_)
}
