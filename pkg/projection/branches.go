package projection

import (
	"github.com/go-go-golems/locus/pkg/conversation"
)

// BranchRef points at a child node that forked at some message.
type BranchRef struct {
	NodeID conversation.NodeID `json:"nodeId"`
	Title  string              `json:"title"`
}

// BranchIndex maps the id of a fork-point message to the children of the
// current node that were forked there, in child creation order.
type BranchIndex map[conversation.MessageID][]BranchRef

// Branches builds the branch index of the current node. A child's fork point
// is the message at index inheritedMessageCount-1 of its run; children without
// an inherited count, or with an empty prefix, are skipped.
func Branches(c *conversation.Conversation) BranchIndex {
	ret := BranchIndex{}
	current := CurrentNode(c)
	if current == nil {
		return ret
	}

	for _, childID := range current.Children {
		child, ok := c.Node(childID)
		if !ok {
			continue
		}
		count, ok := child.Inherited()
		if !ok {
			continue
		}
		idx := count - 1
		if idx < 0 || idx >= len(child.Messages) {
			continue
		}
		messageID := child.Messages[idx].ID
		ret[messageID] = append(ret[messageID], BranchRef{NodeID: child.ID, Title: child.Title})
	}

	return ret
}

// Count returns the number of branches recorded at messageID.
func (b BranchIndex) Count(messageID conversation.MessageID) int {
	return len(b[messageID])
}
