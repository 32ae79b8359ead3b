// Package projection derives read-only views from a conversation tree: the
// active message list, branch points, and 2-D layouts for the tree and minimap.
// None of the functions here modify the conversation they are given.
package projection

import (
	"github.com/go-go-golems/locus/pkg/conversation"
)

// CurrentMessages returns the message list of the current node, or an empty
// list when c is nil.
func CurrentMessages(c *conversation.Conversation) conversation.Messages {
	if c == nil {
		return conversation.Messages{}
	}
	return c.CurrentMessages()
}

func CurrentNode(c *conversation.Conversation) *conversation.Node {
	if c == nil {
		return nil
	}
	return c.CurrentNode()
}

// ParentNode returns the parent of the current node, or nil at the root.
func ParentNode(c *conversation.Conversation) *conversation.Node {
	current := CurrentNode(c)
	if current == nil || current.IsRoot() {
		return nil
	}
	parent, _ := c.Node(current.ParentID)
	return parent
}

// InheritedDividerIndex is the index of the last inherited message of the
// current node, after which its own history begins. It returns -1 when the
// node has no inherited prefix.
func InheritedDividerIndex(c *conversation.Conversation) int {
	current := CurrentNode(c)
	if current == nil {
		return -1
	}
	count, ok := current.Inherited()
	if !ok || count <= 0 {
		return -1
	}
	return count - 1
}

// MessagePath returns the current node's messages up to and including
// messageID, or an empty list when the message is not in the current node.
// Appending to the result never writes into the node.
func MessagePath(c *conversation.Conversation, messageID conversation.MessageID) conversation.Messages {
	messages := CurrentMessages(c)
	idx := messages.IndexOf(messageID)
	if idx < 0 {
		return conversation.Messages{}
	}
	return messages[:idx+1 : idx+1]
}

// Turn is a role/content pair as sent to a reply source.
type Turn struct {
	Role    conversation.Role `json:"role" yaml:"role"`
	Content string            `json:"content" yaml:"content"`
}

// History returns the current messages as role/content pairs.
func History(c *conversation.Conversation) []Turn {
	messages := CurrentMessages(c)
	ret := make([]Turn, 0, len(messages))
	for _, m := range messages {
		ret = append(ret, Turn{Role: m.Role, Content: m.Content})
	}
	return ret
}

// ActivePath returns the set of nodes on the way from the current node up to
// the root, the current node included.
func ActivePath(c *conversation.Conversation) map[conversation.NodeID]bool {
	ret := map[conversation.NodeID]bool{}
	if c == nil {
		return ret
	}
	for _, id := range c.GetAncestry(c.CurrentNodeID) {
		ret[id] = true
	}
	return ret
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
