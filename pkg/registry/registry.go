// Package registry owns the set of conversations, the active-conversation
// pointer and the session state around them, and routes every tree mutation
// to the active conversation.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Clock returns the time stamped on mutations.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

type Option func(*Registry)

func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.now = clock
	}
}

func WithMemo(memo *projection.Memo) Option {
	return func(r *Registry) {
		r.memo = memo
	}
}

// Registry is safe for concurrent use. Every mutation is applied to a private
// copy of the active conversation which replaces the stored one only when the
// mutation succeeds, so readers never observe a half-applied change.
//
// Conversations returned by the accessors are shared and must not be
// modified; use Conversation.Snapshot for a private copy.
type Registry struct {
	mu sync.RWMutex

	conversations map[conversation.ConversationID]*conversation.Conversation
	activeID      conversation.ConversationID
	session       Session

	now  Clock
	memo *projection.Memo
}

func New(options ...Option) (*Registry, error) {
	ret := &Registry{
		conversations: map[conversation.ConversationID]*conversation.Conversation{},
		activeID:      conversation.NullConversation,
		session:       defaultSession(),
		now:           systemClock,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.memo == nil {
		memo, err := projection.NewMemo(projection.DefaultMemoSize)
		if err != nil {
			return nil, err
		}
		ret.memo = memo
	}
	return ret, nil
}

// CreateConversation registers a new conversation with an empty root node and
// makes it active.
func (r *Registry) CreateConversation() conversation.ConversationID {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := conversation.NewConversation(r.now())
	r.conversations[c.ID] = c
	r.activeID = c.ID

	log.Debug().Str("conversation_id", c.ID.String()).Msg("created conversation")
	return c.ID
}

// AddConversation registers a conversation built elsewhere, for example an
// imported transcript, and makes it active. It is rejected when it does not
// validate or its id is already taken.
func (r *Registry) AddConversation(c *conversation.Conversation) error {
	if c == nil {
		return errors.New("nil conversation")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[c.ID]; ok {
		return errors.Errorf("conversation %s already exists", c.ID)
	}
	r.conversations[c.ID] = c.Snapshot()
	r.activeID = c.ID

	log.Debug().Str("conversation_id", c.ID.String()).Int("nodes", len(c.Nodes)).Msg("added conversation")
	return nil
}

// SelectConversation makes id the active conversation. Unknown ids leave the
// registry unchanged.
func (r *Registry) SelectConversation(id conversation.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		log.Debug().Str("conversation_id", id.String()).Msg("select ignored, unknown conversation")
		return ErrConversationNotFound
	}
	r.activeID = id
	return nil
}

// DeleteConversation removes a conversation. When it was active, the most
// recently updated remaining conversation becomes active, or none if it was
// the last one.
func (r *Registry) DeleteConversation(id conversation.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		log.Debug().Str("conversation_id", id.String()).Msg("delete ignored, unknown conversation")
		return ErrConversationNotFound
	}
	delete(r.conversations, id)
	if r.activeID == id {
		r.activeID = r.mostRecentLocked()
	}
	return nil
}

func (r *Registry) mostRecentLocked() conversation.ConversationID {
	list := r.listLocked()
	if len(list) == 0 {
		return conversation.NullConversation
	}
	return list[0].ID
}

// Summary is a conversation listing entry.
type Summary struct {
	ID        conversation.ConversationID `json:"id"`
	Title     string                      `json:"title"`
	NodeCount int                         `json:"nodeCount"`
	Active    bool                        `json:"active"`
	CreatedAt time.Time                   `json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// List returns the conversations, most recently updated first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []Summary {
	ret := make([]Summary, 0, len(r.conversations))
	for _, c := range r.conversations {
		ret = append(ret, Summary{
			ID:        c.ID,
			Title:     c.Title,
			NodeCount: len(c.Nodes),
			Active:    c.ID == r.activeID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	sort.Slice(ret, func(i, j int) bool {
		if !ret[i].UpdatedAt.Equal(ret[j].UpdatedAt) {
			return ret[i].UpdatedAt.After(ret[j].UpdatedAt)
		}
		return ret[i].ID.String() < ret[j].ID.String()
	})
	return ret
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

func (r *Registry) Conversation(id conversation.ConversationID) (*conversation.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	return c, ok
}

// Active returns the active conversation, or nil.
func (r *Registry) Active() *conversation.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conversations[r.activeID]
}

func (r *Registry) ActiveID() conversation.ConversationID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.conversations[r.activeID]; !ok {
		return conversation.NullConversation
	}
	return r.activeID
}

// Apply runs m against the active conversation as one atomic step. On error
// the stored conversation is left untouched.
func (r *Registry) Apply(m conversation.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(m)
}

func (r *Registry) applyLocked(m conversation.Mutation) error {
	current, ok := r.conversations[r.activeID]
	if !ok {
		log.Debug().Str("mutation", m.Name()).Msg("mutation ignored, no active conversation")
		return ErrNoActiveConversation
	}

	next := current.Clone()
	if err := next.Apply(m, r.now()); err != nil {
		log.Debug().
			Str("conversation_id", current.ID.String()).
			Str("mutation", m.Name()).
			Err(err).
			Msg("mutation ignored")
		return err
	}
	r.conversations[next.ID] = next

	log.Trace().
		Str("conversation_id", next.ID.String()).
		Str("mutation", m.Name()).
		Int64("version", next.Version).
		Str("current_node", next.CurrentNodeID.String()).
		Msg("applied mutation")
	return nil
}

// AddMessage appends a message to the current node of the active conversation
// and returns its id, or NullMessage when nothing was added.
func (r *Registry) AddMessage(role conversation.Role, content string, options ...conversation.MessageOption) (conversation.MessageID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	options = append([]conversation.MessageOption{conversation.WithTime(r.now())}, options...)
	msg := conversation.NewMessage(role, content, options...)
	if err := r.applyLocked(conversation.MutateAddMessage(msg)); err != nil {
		return conversation.NullMessage, err
	}
	return msg.ID, nil
}

func (r *Registry) BranchFromMessage(messageID conversation.MessageID) error {
	return r.Apply(conversation.MutateBranchFromMessage(messageID))
}

func (r *Registry) BranchFromNode(nodeID conversation.NodeID) error {
	return r.Apply(conversation.MutateBranchFromNode(nodeID))
}

func (r *Registry) NavigateToNode(nodeID conversation.NodeID) error {
	return r.Apply(conversation.MutateNavigateToNode(nodeID))
}

// NavigateToNodeWithOrigin navigates and records origin as the transition
// hint. The hint is only recorded when the navigation succeeds.
func (r *Registry) NavigateToNodeWithOrigin(nodeID conversation.NodeID, origin conversation.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.applyLocked(conversation.MutateNavigateToNode(nodeID)); err != nil {
		return err
	}
	r.session.TransitionOrigin = origin
	return nil
}

func (r *Registry) Backtrack(steps int) error {
	return r.Apply(conversation.MutateBacktrack(steps))
}

func (r *Registry) BacktrackTo(messageID conversation.MessageID) error {
	return r.Apply(conversation.MutateBacktrackTo(messageID))
}

func (r *Registry) RollbackNode(nodeID conversation.NodeID) error {
	return r.Apply(conversation.MutateRollbackNode(nodeID))
}

func (r *Registry) UpdateNodeTitle(nodeID conversation.NodeID, title string) error {
	return r.Apply(conversation.MutateUpdateNodeTitle(nodeID, title))
}

func (r *Registry) SetNodePosition(nodeID conversation.NodeID, position conversation.Position) error {
	return r.Apply(conversation.MutateSetNodePosition(nodeID, position))
}
