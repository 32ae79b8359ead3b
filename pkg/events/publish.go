package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// ChatTopic is the topic stream events are published on.
const ChatTopic = "chat"

// PublisherManager is used to distribute events to a set of Publishers.
// As such, you "subscribe" a publisher to the given topic.
// When you Publish an event, it will get distributed to all publishers
// on the topic they were subscribed with.
//
// The Manager also keeps a sequence number for each outgoing message,
// in the order they are handled by Publish.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) RegisterPublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

// Publish serializes the event to JSON and hands it to every registered
// publisher.
func (s *PublisherManager) Publish(e Event) error {
	// lock for the sequence number
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	for topic, pubs := range s.Publishers {
		for _, pub := range pubs {
			msg := message.NewMessage(watermill.NewUUID(), b)
			msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
			msg.Metadata.Set("conversation_id", e.Metadata().ConversationID.String())
			msg.Metadata.Set("event_type", string(e.Type()))
			if err := pub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
			}
		}
	}
	s.sequenceNumber++

	return nil
}

func (s *PublisherManager) PublishBlind(e Event) {
	err := s.Publish(e)
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}
