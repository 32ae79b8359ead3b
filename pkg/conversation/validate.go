package conversation

import (
	"errors"
	"fmt"
)

var ErrInvalidTree = errors.New("invalid conversation tree")

// Validate checks the structural invariants of the conversation:
// no node or message is null, the nodes reachable from the root form a tree covering every node, parent
// and children links agree, the current pointer resolves, inherited counts are
// in range and the cached message path matches the current node.
func (c *Conversation) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidTree)
	}
	root, ok := c.Nodes[c.RootNodeID]
	if !ok || root == nil {
		return fmt.Errorf("%w: root node %s missing", ErrInvalidTree, c.RootNodeID)
	}
	if !root.ParentID.IsNull() {
		return fmt.Errorf("%w: root node %s has parent %s", ErrInvalidTree, root.ID, root.ParentID)
	}
	current, ok := c.Nodes[c.CurrentNodeID]
	if !ok || current == nil {
		return fmt.Errorf("%w: current node %s missing", ErrInvalidTree, c.CurrentNodeID)
	}

	visited := make(map[NodeID]bool, len(c.Nodes))
	stack := []NodeID{c.RootNodeID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			return fmt.Errorf("%w: node %s reached twice", ErrInvalidTree, id)
		}
		visited[id] = true

		n := c.Nodes[id]
		if n == nil {
			return fmt.Errorf("%w: node %s is null", ErrInvalidTree, id)
		}
		if n.ID != id {
			return fmt.Errorf("%w: node stored under %s has id %s", ErrInvalidTree, id, n.ID)
		}
		if count, ok := n.Inherited(); ok && (count < 0 || count > len(n.Messages)) {
			return fmt.Errorf("%w: node %s inherits %d of %d messages", ErrInvalidTree, id, count, len(n.Messages))
		}
		for i, m := range n.Messages {
			if m == nil {
				return fmt.Errorf("%w: message %d of node %s is null", ErrInvalidTree, i, id)
			}
		}
		for _, childID := range n.Children {
			child, ok := c.Nodes[childID]
			if !ok || child == nil {
				return fmt.Errorf("%w: node %s lists missing child %s", ErrInvalidTree, id, childID)
			}
			if child.ParentID != id {
				return fmt.Errorf("%w: child %s of %s points at parent %s", ErrInvalidTree, childID, id, child.ParentID)
			}
			stack = append(stack, childID)
		}
	}

	if len(visited) != len(c.Nodes) {
		return fmt.Errorf("%w: %d of %d nodes unreachable from root", ErrInvalidTree, len(c.Nodes)-len(visited), len(c.Nodes))
	}

	ids := current.Messages.IDs()
	if len(ids) != len(c.CurrentMessagePath) {
		return fmt.Errorf("%w: message path has %d entries, current node has %d messages", ErrInvalidTree, len(c.CurrentMessagePath), len(ids))
	}
	for i := range ids {
		if ids[i] != c.CurrentMessagePath[i] {
			return fmt.Errorf("%w: message path diverges at index %d", ErrInvalidTree, i)
		}
	}

	return nil
}
