package conversation

import (
	"time"
)

const (
	DefaultNodeTitle         = "New Branch"
	DefaultConversationTitle = "New Conversation"
)

// Position is a 2-D coordinate used by the tree visualisation.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one continuous branch of a conversation. When a node is forked from
// an ancestor its leading InheritedMessageCount messages are copies of the
// ancestor's run; the rest were authored in this node.
type Node struct {
	ID       NodeID   `json:"id" yaml:"id"`
	Messages Messages `json:"messages" yaml:"messages"`
	ParentID NodeID   `json:"parentId" yaml:"parentId"`
	Children []NodeID `json:"children" yaml:"children"`
	Title    string   `json:"title" yaml:"title"`

	InheritedMessageCount *int      `json:"inheritedMessageCount,omitempty" yaml:"inheritedMessageCount,omitempty"`
	Position              *Position `json:"position,omitempty" yaml:"position,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

func newNode(parentID NodeID, now time.Time) *Node {
	return &Node{
		ID:        NewNodeID(),
		Messages:  Messages{},
		ParentID:  parentID,
		Children:  []NodeID{},
		Title:     DefaultNodeTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (n *Node) IsRoot() bool {
	return n.ParentID.IsNull()
}

// Inherited reports the inherited message count and whether it is defined.
func (n *Node) Inherited() (int, bool) {
	if n.InheritedMessageCount == nil {
		return 0, false
	}
	return *n.InheritedMessageCount, true
}

// OwnMessages returns the messages authored in this node after the inherited prefix.
func (n *Node) OwnMessages() Messages {
	count, ok := n.Inherited()
	if !ok || count <= 0 {
		return n.Messages
	}
	if count >= len(n.Messages) {
		return Messages{}
	}
	return n.Messages[count:]
}

// clone returns a copy whose slices and pointers can be changed without
// affecting n. Message values themselves are shared since they are immutable.
func (n *Node) clone() *Node {
	ret := *n
	ret.Messages = n.Messages.clone()
	ret.Children = append([]NodeID{}, n.Children...)
	if n.InheritedMessageCount != nil {
		count := *n.InheritedMessageCount
		ret.InheritedMessageCount = &count
	}
	if n.Position != nil {
		pos := *n.Position
		ret.Position = &pos
	}
	return &ret
}
