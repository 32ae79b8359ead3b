package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNodeNotFound       = errors.New("node not found")
	ErrMessageNotFound    = errors.New("message not found in current node")
	ErrEmptyTitle         = errors.New("title is empty")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidSteps       = errors.New("backtrack steps must be positive")
	ErrNothingToBacktrack = errors.New("nothing to backtrack")
	ErrNothingToRollback  = errors.New("node has no messages")
)

const (
	titleMaxRunes       = 30
	titleEllipsis       = "…"
	branchPreviewRunes  = 20
	branchTitlePrefix   = "Branch from: "
	branchTitleFallback = "message"
)

// Mutation represents a deterministic change to a conversation.
type Mutation interface {
	Apply(c *Conversation, now time.Time) error
	Name() string
}

type addMessageMutation struct {
	message *Message
}

// MutateAddMessage appends msg to the current node, linking it to the
// previous last message. The first user message replaces the default
// conversation title with a truncated copy of its content.
func MutateAddMessage(msg *Message) Mutation {
	return addMessageMutation{message: msg}
}

func (m addMessageMutation) Apply(c *Conversation, now time.Time) error {
	if m.message == nil {
		return fmt.Errorf("message is nil")
	}
	if !m.message.Role.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidRole, m.message.Role)
	}
	node, ok := c.editNode(c.CurrentNodeID, now)
	if !ok {
		return fmt.Errorf("%w: current node %s", ErrNodeNotFound, c.CurrentNodeID)
	}

	parentID := NullMessage
	if last := node.Messages.Last(); last != nil {
		parentID = last.ID
	}
	msg := m.message.withParent(parentID)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	node.Messages = append(node.Messages, msg)

	if msg.Role == RoleUser && c.Title == DefaultConversationTitle {
		c.Title = DeriveTitle(msg.Content)
	}
	return nil
}

func (m addMessageMutation) Name() string { return "add_message" }

// DeriveTitle truncates content to 30 characters, adding an ellipsis when cut.
func DeriveTitle(content string) string {
	return truncateRunes(content, titleMaxRunes, titleEllipsis)
}

func truncateRunes(s string, max int, suffix string) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + suffix
}

type branchFromMessageMutation struct {
	messageID MessageID
}

// MutateBranchFromMessage forks the current node at messageID: the new child
// receives a copy of the run up to and including that message and becomes current.
func MutateBranchFromMessage(messageID MessageID) Mutation {
	return branchFromMessageMutation{messageID: messageID}
}

func (m branchFromMessageMutation) Apply(c *Conversation, now time.Time) error {
	source, ok := c.Nodes[c.CurrentNodeID]
	if !ok {
		return fmt.Errorf("%w: current node %s", ErrNodeNotFound, c.CurrentNodeID)
	}
	idx := source.Messages.IndexOf(m.messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, m.messageID)
	}

	child := fork(c, source.ID, source.Messages[:idx+1], now)
	preview := branchTitleFallback
	if len(child.Messages) > 0 && child.Messages[0].Content != "" {
		preview = truncateRunes(child.Messages[0].Content, branchPreviewRunes, "")
	}
	child.Title = branchTitlePrefix + preview + "..."
	return nil
}

func (m branchFromMessageMutation) Name() string { return "branch_from_message" }

type branchFromNodeMutation struct {
	nodeID NodeID
}

// MutateBranchFromNode forks the entire run of an arbitrary node.
func MutateBranchFromNode(nodeID NodeID) Mutation {
	return branchFromNodeMutation{nodeID: nodeID}
}

func (m branchFromNodeMutation) Apply(c *Conversation, now time.Time) error {
	source, ok := c.Nodes[m.nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, m.nodeID)
	}
	child := fork(c, source.ID, source.Messages, now)
	child.Title = branchTitlePrefix + source.Title
	return nil
}

func (m branchFromNodeMutation) Name() string { return "branch_from_node" }

// fork creates a child of parentID seeded with a copy of prefix, registers it
// in the parent's children and moves the current pointer to it.
func fork(c *Conversation, parentID NodeID, prefix Messages, now time.Time) *Node {
	child := newNode(parentID, now)
	child.Messages = prefix.clone()
	count := len(child.Messages)
	child.InheritedMessageCount = &count
	c.addNode(child)

	parent, _ := c.editNode(parentID, now)
	parent.Children = append(parent.Children, child.ID)

	c.CurrentNodeID = child.ID
	return child
}

type navigateMutation struct {
	nodeID NodeID
}

// MutateNavigateToNode moves the current pointer to an existing node.
func MutateNavigateToNode(nodeID NodeID) Mutation {
	return navigateMutation{nodeID: nodeID}
}

func (m navigateMutation) Apply(c *Conversation, _ time.Time) error {
	if _, ok := c.Nodes[m.nodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, m.nodeID)
	}
	c.CurrentNodeID = m.nodeID
	return nil
}

func (m navigateMutation) Name() string { return "navigate_to_node" }

type backtrackMutation struct {
	steps int
}

// MutateBacktrack removes the last steps messages of the current node. When
// the node does not hold more than steps messages the current pointer moves to
// the parent instead; the root is left untouched in that case.
func MutateBacktrack(steps int) Mutation {
	return backtrackMutation{steps: steps}
}

func (m backtrackMutation) Apply(c *Conversation, now time.Time) error {
	if m.steps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSteps, m.steps)
	}
	current, ok := c.Nodes[c.CurrentNodeID]
	if !ok {
		return fmt.Errorf("%w: current node %s", ErrNodeNotFound, c.CurrentNodeID)
	}

	if len(current.Messages) > m.steps {
		node, _ := c.editNode(current.ID, now)
		truncate(node, len(node.Messages)-m.steps)
		return nil
	}
	if current.IsRoot() {
		return fmt.Errorf("%w: root holds %d messages, asked for %d", ErrNothingToBacktrack, len(current.Messages), m.steps)
	}
	return navigateMutation{nodeID: current.ParentID}.Apply(c, now)
}

func (m backtrackMutation) Name() string { return "backtrack" }

type backtrackToMutation struct {
	messageID MessageID
}

// MutateBacktrackTo truncates the current node so that messageID becomes its
// last message.
func MutateBacktrackTo(messageID MessageID) Mutation {
	return backtrackToMutation{messageID: messageID}
}

func (m backtrackToMutation) Apply(c *Conversation, now time.Time) error {
	messages := c.CurrentMessages()
	idx := messages.IndexOf(m.messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, m.messageID)
	}
	steps := len(messages) - idx - 1
	if steps <= 0 {
		return fmt.Errorf("%w: %s is already the last message", ErrNothingToBacktrack, m.messageID)
	}
	return backtrackMutation{steps: steps}.Apply(c, now)
}

func (m backtrackToMutation) Name() string { return "backtrack_to" }

type rollbackNodeMutation struct {
	nodeID NodeID
}

// MutateRollbackNode removes the trailing user/assistant pair of a node, or
// only its last message when the run does not end in that pattern.
func MutateRollbackNode(nodeID NodeID) Mutation {
	return rollbackNodeMutation{nodeID: nodeID}
}

func (m rollbackNodeMutation) Apply(c *Conversation, now time.Time) error {
	n, ok := c.Nodes[m.nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, m.nodeID)
	}
	count := len(n.Messages)
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrNothingToRollback, m.nodeID)
	}

	steps := 1
	if count >= 2 && n.Messages[count-1].Role == RoleAssistant && n.Messages[count-2].Role == RoleUser {
		steps = 2
	}
	node, _ := c.editNode(m.nodeID, now)
	truncate(node, count-steps)
	return nil
}

func (m rollbackNodeMutation) Name() string { return "rollback_node" }

// truncate keeps the first keep messages and clamps the inherited count so it
// never exceeds the run length.
func truncate(n *Node, keep int) {
	if keep < 0 {
		keep = 0
	}
	n.Messages = n.Messages[:keep]
	if count, ok := n.Inherited(); ok && count > keep {
		n.InheritedMessageCount = &keep
	}
}

type updateNodeTitleMutation struct {
	nodeID NodeID
	title  string
}

// MutateUpdateNodeTitle renames a node. Blank titles are rejected.
func MutateUpdateNodeTitle(nodeID NodeID, title string) Mutation {
	return updateNodeTitleMutation{nodeID: nodeID, title: title}
}

func (m updateNodeTitleMutation) Apply(c *Conversation, now time.Time) error {
	title := strings.TrimSpace(m.title)
	if title == "" {
		return ErrEmptyTitle
	}
	node, ok := c.editNode(m.nodeID, now)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, m.nodeID)
	}
	node.Title = title
	return nil
}

func (m updateNodeTitleMutation) Name() string { return "update_node_title" }

type setNodePositionMutation struct {
	nodeID   NodeID
	position Position
}

// MutateSetNodePosition pins a node to a user-chosen layout coordinate.
func MutateSetNodePosition(nodeID NodeID, position Position) Mutation {
	return setNodePositionMutation{nodeID: nodeID, position: position}
}

func (m setNodePositionMutation) Apply(c *Conversation, now time.Time) error {
	node, ok := c.editNode(m.nodeID, now)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, m.nodeID)
	}
	pos := m.position
	node.Position = &pos
	return nil
}

func (m setNodePositionMutation) Name() string { return "set_node_position" }
