package conversation

import (
	"encoding/json"

	"github.com/google/uuid"
)

// NodeID identifies a ConversationNode within a Conversation.
type NodeID uuid.UUID

// MessageID identifies a single Message. Messages copied into a branch keep their ID.
type MessageID uuid.UUID

// ConversationID identifies a Conversation inside the registry.
type ConversationID uuid.UUID

var (
	NullNode         = NodeID(uuid.Nil)
	NullMessage      = MessageID(uuid.Nil)
	NullConversation = ConversationID(uuid.Nil)
)

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func NewConversationID() ConversationID {
	return ConversationID(uuid.New())
}

// The IDs marshal through encoding.TextMarshaler so that they can be used as
// JSON and YAML object keys. As values, a null id is written as null, and null
// or "" read back as the null id.

func (id NodeID) String() string { return uuid.UUID(id).String() }
func (id NodeID) IsNull() bool   { return id == NullNode }

func (id NodeID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *NodeID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	return marshalJSON(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	return unmarshalJSON((*uuid.UUID)(id), data)
}

func (id NodeID) MarshalYAML() (interface{}, error) {
	return marshalYAML(uuid.UUID(id)), nil
}

func (id MessageID) String() string { return uuid.UUID(id).String() }
func (id MessageID) IsNull() bool   { return id == NullMessage }

func (id MessageID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *MessageID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	return marshalJSON(uuid.UUID(id))
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	return unmarshalJSON((*uuid.UUID)(id), data)
}

func (id MessageID) MarshalYAML() (interface{}, error) {
	return marshalYAML(uuid.UUID(id)), nil
}

func (id ConversationID) String() string { return uuid.UUID(id).String() }
func (id ConversationID) IsNull() bool   { return id == NullConversation }

func (id ConversationID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ConversationID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

func (id ConversationID) MarshalJSON() ([]byte, error) {
	return marshalJSON(uuid.UUID(id))
}

func (id *ConversationID) UnmarshalJSON(data []byte) error {
	return unmarshalJSON((*uuid.UUID)(id), data)
}

func (id ConversationID) MarshalYAML() (interface{}, error) {
	return marshalYAML(uuid.UUID(id)), nil
}

func marshalJSON(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return []byte("null"), nil
	}
	return json.Marshal(u.String())
}

func unmarshalJSON(u *uuid.UUID, data []byte) error {
	if string(data) == "null" {
		*u = uuid.Nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = uuid.Nil
		return nil
	}
	return u.UnmarshalText([]byte(s))
}

func marshalYAML(u uuid.UUID) interface{} {
	if u == uuid.Nil {
		return nil
	}
	return u.String()
}

// ParseNodeID accepts the canonical uuid string form.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullNode, err
	}
	return NodeID(u), nil
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullMessage, err
	}
	return MessageID(u), nil
}

func ParseConversationID(s string) (ConversationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullConversation, err
	}
	return ConversationID(u), nil
}

// FindChildren returns the IDs of the children of the given node, in creation order.
func (c *Conversation) FindChildren(id NodeID) []NodeID {
	node, exists := c.Nodes[id]
	if !exists {
		return nil
	}
	children := make([]NodeID, len(node.Children))
	copy(children, node.Children)
	return children
}

// FindSiblings returns the IDs of all nodes sharing the parent of the given node.
func (c *Conversation) FindSiblings(id NodeID) []NodeID {
	node, exists := c.Nodes[id]
	if !exists {
		return nil
	}

	parent, exists := c.Nodes[node.ParentID]
	if !exists {
		return nil
	}

	var siblings []NodeID
	for _, sibling := range parent.Children {
		if sibling != id {
			siblings = append(siblings, sibling)
		}
	}

	return siblings
}

// GetAncestry retrieves the chain of node IDs from the root down to the given node.
// The walk stops early on a missing parent or a revisited node, so a corrupted
// parent chain never loops.
func (c *Conversation) GetAncestry(id NodeID) []NodeID {
	var chain []NodeID
	seen := map[NodeID]bool{}
	for !id.IsNull() {
		node, exists := c.Nodes[id]
		if !exists || seen[id] {
			break
		}
		seen[id] = true
		chain = append([]NodeID{id}, chain...)
		id = node.ParentID
	}
	return chain
}

// Depth returns the number of parent hops from the node to the root, or -1 if unknown.
func (c *Conversation) Depth(id NodeID) int {
	chain := c.GetAncestry(id)
	if len(chain) == 0 {
		return -1
	}
	return len(chain) - 1
}
