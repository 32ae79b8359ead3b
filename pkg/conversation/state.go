package conversation

import (
	"fmt"
	"time"

	"github.com/huandu/go-clone"
)

// Conversation is the aggregate root: a tree of nodes with a root pointer and
// a current pointer. CurrentMessagePath mirrors the IDs of the current node's
// messages and is recomputed by Apply after every mutation.
type Conversation struct {
	ID                 ConversationID   `json:"id" yaml:"id"`
	RootNodeID         NodeID           `json:"rootNodeId" yaml:"rootNodeId"`
	Nodes              map[NodeID]*Node `json:"nodes" yaml:"nodes"`
	CurrentNodeID      NodeID           `json:"currentNodeId" yaml:"currentNodeId"`
	CurrentMessagePath []MessageID      `json:"currentMessagePath" yaml:"currentMessagePath"`
	Title              string           `json:"title" yaml:"title"`
	CreatedAt          time.Time        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt" yaml:"updatedAt"`

	// Version increases by one for every applied mutation. It is process-local
	// and keys the derived-view caches.
	Version int64 `json:"-" yaml:"-"`
}

// NewConversation creates a conversation holding a single empty root node.
func NewConversation(now time.Time) *Conversation {
	root := newNode(NullNode, now)
	return &Conversation{
		ID:                 NewConversationID(),
		RootNodeID:         root.ID,
		Nodes:              map[NodeID]*Node{root.ID: root},
		CurrentNodeID:      root.ID,
		CurrentMessagePath: []MessageID{},
		Title:              DefaultConversationTitle,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (c *Conversation) Node(id NodeID) (*Node, bool) {
	n, ok := c.Nodes[id]
	return n, ok
}

func (c *Conversation) CurrentNode() *Node {
	return c.Nodes[c.CurrentNodeID]
}

func (c *Conversation) RootNode() *Node {
	return c.Nodes[c.RootNodeID]
}

// CurrentMessages returns the message run of the current node.
func (c *Conversation) CurrentMessages() Messages {
	n := c.CurrentNode()
	if n == nil {
		return Messages{}
	}
	return n.Messages
}

// Apply runs a mutation against c. The mutation may leave c half-modified when
// it fails, so callers that need atomicity apply it to a Clone and discard the
// clone on error (the registry does this).
func (c *Conversation) Apply(m Mutation, now time.Time) error {
	if c == nil {
		return fmt.Errorf("conversation is nil")
	}
	if m == nil {
		return fmt.Errorf("mutation is nil")
	}
	if err := m.Apply(c, now); err != nil {
		return fmt.Errorf("mutation %s failed: %w", m.Name(), err)
	}
	c.syncCurrentMessagePath()
	c.UpdatedAt = now
	c.Version++
	return nil
}

// ApplyAll applies multiple mutations sequentially, stopping at the first error.
func (c *Conversation) ApplyAll(now time.Time, muts ...Mutation) error {
	for _, m := range muts {
		if err := c.Apply(m, now); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conversation) syncCurrentMessagePath() {
	c.CurrentMessagePath = c.CurrentMessages().IDs()
}

// Clone returns a copy-on-write copy: a fresh node map pointing at the same
// node values. Mutations replace the nodes they touch (see editNode), so the
// original conversation is never observed half-updated.
func (c *Conversation) Clone() *Conversation {
	ret := *c
	ret.Nodes = make(map[NodeID]*Node, len(c.Nodes))
	for id, n := range c.Nodes {
		ret.Nodes[id] = n
	}
	ret.CurrentMessagePath = append([]MessageID{}, c.CurrentMessagePath...)
	return &ret
}

// Snapshot returns a fully independent deep copy, safe to hand to code that
// may modify it.
func (c *Conversation) Snapshot() *Conversation {
	return clone.Clone(c).(*Conversation)
}

// editNode replaces the node with a private copy and returns it for modification.
func (c *Conversation) editNode(id NodeID, now time.Time) (*Node, bool) {
	n, ok := c.Nodes[id]
	if !ok {
		return nil, false
	}
	edited := n.clone()
	edited.UpdatedAt = now
	c.Nodes[id] = edited
	return edited, true
}

func (c *Conversation) addNode(n *Node) {
	c.Nodes[n.ID] = n
}
