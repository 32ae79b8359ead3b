package registry

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/conversation"
)

// State is the persisted document. Loading flag, transient error, view mode
// and transition origin are not part of it.
type State struct {
	Conversations        map[conversation.ConversationID]*conversation.Conversation `json:"conversations" yaml:"conversations"`
	ActiveConversationID conversation.ConversationID                                `json:"activeConversationId" yaml:"activeConversationId"`
	SelectedModel        string                                                     `json:"selectedModel" yaml:"selectedModel"`
	APIKey               string                                                     `json:"apiKey" yaml:"apiKey"`
}

func NewState() *State {
	return &State{
		Conversations:        map[conversation.ConversationID]*conversation.Conversation{},
		ActiveConversationID: conversation.NullConversation,
		SelectedModel:        DefaultSelectedModel,
	}
}

// State returns a deep copy of the persisted part of the registry.
func (r *Registry) State() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := &State{
		Conversations:        make(map[conversation.ConversationID]*conversation.Conversation, len(r.conversations)),
		ActiveConversationID: r.activeID,
		SelectedModel:        r.session.SelectedModel,
		APIKey:               r.session.APIKey,
	}
	if _, ok := r.conversations[r.activeID]; !ok {
		ret.ActiveConversationID = conversation.NullConversation
	}
	for id, c := range r.conversations {
		ret.Conversations[id] = c.Snapshot()
	}
	return ret
}

// Restore replaces the registry content with s. Conversations that fail
// validation are dropped and logged. A dangling active id falls back to the
// most recently updated conversation, a null one stays null. Non-persisted
// session fields are reset.
func (r *Registry) Restore(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations = map[conversation.ConversationID]*conversation.Conversation{}
	r.session = defaultSession()
	r.activeID = conversation.NullConversation
	r.memo.Purge()

	if s == nil {
		return
	}
	for id, c := range s.Conversations {
		if c == nil {
			continue
		}
		if c.ID != id {
			log.Error().
				Str("key", id.String()).
				Str("conversation_id", c.ID.String()).
				Msg("dropping conversation stored under a foreign key")
			continue
		}
		if err := c.Validate(); err != nil {
			log.Error().Err(err).Str("conversation_id", id.String()).Msg("dropping invalid conversation")
			continue
		}
		r.conversations[id] = c.Snapshot()
	}

	if s.SelectedModel != "" {
		r.session.SelectedModel = s.SelectedModel
	}
	r.session.APIKey = s.APIKey

	switch _, ok := r.conversations[s.ActiveConversationID]; {
	case ok:
		r.activeID = s.ActiveConversationID
	case !s.ActiveConversationID.IsNull():
		log.Warn().
			Str("conversation_id", s.ActiveConversationID.String()).
			Msg("active conversation missing, falling back")
		r.activeID = r.mostRecentLocked()
	}

	log.Debug().
		Int("conversations", len(r.conversations)).
		Str("active", r.activeID.String()).
		Msg("restored state")
}
