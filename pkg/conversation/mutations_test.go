package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func apply(t *testing.T, c *Conversation, m Mutation) {
	t.Helper()
	require.NoError(t, c.Apply(m, testNow))
	require.NoError(t, c.Validate())
}

func addMessages(t *testing.T, c *Conversation, roles ...Role) Messages {
	t.Helper()
	var ret Messages
	for i, role := range roles {
		msg := NewMessage(role, string(role)+" "+string(rune('a'+i)))
		apply(t, c, MutateAddMessage(msg))
		ret = append(ret, c.CurrentMessages().Last())
	}
	return ret
}

func TestNewConversationHasSingleEmptyRoot(t *testing.T) {
	c := NewConversation(testNow)
	require.NoError(t, c.Validate())
	require.Len(t, c.Nodes, 1)
	assert.Equal(t, c.RootNodeID, c.CurrentNodeID)
	assert.Empty(t, c.CurrentMessages())
	assert.Equal(t, DefaultConversationTitle, c.Title)
	assert.Equal(t, DefaultNodeTitle, c.RootNode().Title)
	assert.True(t, c.RootNode().IsRoot())
}

func TestAddMessageLinksParentAndSyncsPath(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)

	assert.True(t, msgs[0].ParentID.IsNull())
	assert.Equal(t, msgs[0].ID, msgs[1].ParentID)
	assert.Equal(t, []MessageID{msgs[0].ID, msgs[1].ID}, c.CurrentMessagePath)
	assert.Equal(t, int64(2), c.Version)
}

func TestAddMessageRejectsUnknownRole(t *testing.T) {
	c := NewConversation(testNow)
	err := c.Apply(MutateAddMessage(NewMessage(Role("tool"), "x")), testNow)
	require.ErrorIs(t, err, ErrInvalidRole)
	assert.Empty(t, c.CurrentMessages())
}

func TestAddMessageDerivesTitleFromFirstUserMessage(t *testing.T) {
	c := NewConversation(testNow)
	apply(t, c, MutateAddMessage(NewMessage(RoleAssistant, "assistant greeting that is quite long indeed")))
	assert.Equal(t, DefaultConversationTitle, c.Title)

	apply(t, c, MutateAddMessage(NewMessage(RoleUser, "Hello world, this is a long first message")))
	assert.Equal(t, "Hello world, this is a long fi…", c.Title)

	apply(t, c, MutateAddMessage(NewMessage(RoleUser, "second")))
	assert.Equal(t, "Hello world, this is a long fi…", c.Title)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "short", content: "Hi there", want: "Hi there"},
		{name: "exactly thirty", content: "012345678901234567890123456789", want: "012345678901234567890123456789"},
		{name: "thirty one", content: "0123456789012345678901234567890", want: "012345678901234567890123456789…"},
		{name: "multibyte", content: "ééééééééééééééééééééééééééééééé", want: "éééééééééééééééééééééééééééééé…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}

func TestBranchFromMessageCopiesPrefix(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	rootID := c.RootNodeID

	apply(t, c, MutateBranchFromMessage(msgs[1].ID))

	require.NotEqual(t, rootID, c.CurrentNodeID)
	branch := c.CurrentNode()
	assert.Equal(t, rootID, branch.ParentID)
	assert.Equal(t, msgs[:2].IDs(), branch.Messages.IDs())
	count, ok := branch.Inherited()
	require.True(t, ok)
	assert.Equal(t, 2, count)
	assert.Equal(t, []NodeID{branch.ID}, c.RootNode().Children)
	assert.Equal(t, "Branch from: user a...", branch.Title)
	assert.Empty(t, branch.OwnMessages())

	apply(t, c, MutateAddMessage(NewMessage(RoleUser, "alternative")))
	assert.Len(t, c.CurrentMessages(), 3)
	assert.Equal(t, msgs.IDs(), c.RootNode().Messages.IDs(), "source run untouched")
	assert.Len(t, c.CurrentNode().OwnMessages(), 1)
}

func TestBranchFromMessageUnknownIsNoop(t *testing.T) {
	c := NewConversation(testNow)
	addMessages(t, c, RoleUser)
	before := c.Clone()

	err := c.Apply(MutateBranchFromMessage(NewMessageID()), testNow)
	require.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, before.Nodes, c.Nodes)
	assert.Equal(t, before.CurrentNodeID, c.CurrentNodeID)
	assert.Equal(t, before.Version, c.Version)
}

func TestBranchFromNodeCopiesWholeRun(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)
	rootID := c.RootNodeID

	apply(t, c, MutateBranchFromMessage(msgs[0].ID))
	first := c.CurrentNodeID
	apply(t, c, MutateNavigateToNode(rootID))
	apply(t, c, MutateBranchFromNode(rootID))

	second := c.CurrentNode()
	assert.Equal(t, []NodeID{first, second.ID}, c.RootNode().Children)
	assert.Equal(t, msgs.IDs(), second.Messages.IDs())
	count, _ := second.Inherited()
	assert.Equal(t, 2, count)
	assert.Equal(t, "Branch from: "+DefaultNodeTitle, second.Title)

	err := c.Apply(MutateBranchFromNode(NewNodeID()), testNow)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNavigateToNode(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)
	apply(t, c, MutateBranchFromMessage(msgs[0].ID))
	branchID := c.CurrentNodeID

	apply(t, c, MutateNavigateToNode(c.RootNodeID))
	assert.Equal(t, msgs.IDs(), c.CurrentMessagePath)

	apply(t, c, MutateNavigateToNode(branchID))
	assert.Equal(t, msgs[:1].IDs(), c.CurrentMessagePath)

	require.ErrorIs(t, c.Apply(MutateNavigateToNode(NewNodeID()), testNow), ErrNodeNotFound)
	assert.Equal(t, branchID, c.CurrentNodeID)
}

func TestBacktrackBoundary(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant, RoleUser)
	apply(t, c, MutateBranchFromMessage(msgs[2].ID))
	branchID := c.CurrentNodeID

	apply(t, c, MutateBacktrack(2))
	assert.Equal(t, branchID, c.CurrentNodeID)
	assert.Equal(t, msgs[:1].IDs(), c.CurrentMessagePath)
	count, _ := c.CurrentNode().Inherited()
	assert.Equal(t, 1, count, "inherited count clamped to run length")

	apply(t, c, MutateBacktrack(5))
	assert.Equal(t, c.RootNodeID, c.CurrentNodeID)
	assert.Equal(t, msgs.IDs(), c.CurrentMessagePath)
}

func TestBacktrackOnRoot(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)

	require.ErrorIs(t, c.Apply(MutateBacktrack(2), testNow), ErrNothingToBacktrack)
	require.ErrorIs(t, c.Apply(MutateBacktrack(0), testNow), ErrInvalidSteps)
	assert.Equal(t, msgs.IDs(), c.CurrentMessagePath)

	apply(t, c, MutateBacktrack(1))
	assert.Equal(t, msgs[:1].IDs(), c.CurrentMessagePath)
}

func TestBacktrackTo(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant, RoleUser, RoleAssistant)

	apply(t, c, MutateBacktrackTo(msgs[1].ID))
	assert.Equal(t, msgs[:2].IDs(), c.CurrentMessagePath)

	require.ErrorIs(t, c.Apply(MutateBacktrackTo(msgs[1].ID), testNow), ErrNothingToBacktrack)
	require.ErrorIs(t, c.Apply(MutateBacktrackTo(msgs[3].ID), testNow), ErrMessageNotFound)
}

func TestRollbackNodeHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		keep  int
	}{
		{name: "user assistant pair", roles: []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}, keep: 2},
		{name: "trailing user", roles: []Role{RoleUser, RoleAssistant, RoleUser}, keep: 2},
		{name: "double assistant", roles: []Role{RoleUser, RoleAssistant, RoleAssistant}, keep: 2},
		{name: "single assistant", roles: []Role{RoleAssistant}, keep: 0},
		{name: "single pair", roles: []Role{RoleUser, RoleAssistant}, keep: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConversation(testNow)
			msgs := addMessages(t, c, tt.roles...)
			apply(t, c, MutateRollbackNode(c.RootNodeID))
			assert.Equal(t, msgs[:tt.keep].IDs(), c.RootNode().Messages.IDs())
			assert.Equal(t, msgs[:tt.keep].IDs(), c.CurrentMessagePath)
		})
	}
}

func TestRollbackNonCurrentNodeKeepsCurrentPath(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)
	apply(t, c, MutateBranchFromMessage(msgs[1].ID))
	addMessages(t, c, RoleUser)
	path := append([]MessageID{}, c.CurrentMessagePath...)

	apply(t, c, MutateRollbackNode(c.RootNodeID))
	assert.Empty(t, c.RootNode().Messages)
	assert.Equal(t, path, c.CurrentMessagePath)

	require.ErrorIs(t, c.Apply(MutateRollbackNode(c.RootNodeID), testNow), ErrNothingToRollback)
	require.ErrorIs(t, c.Apply(MutateRollbackNode(NewNodeID()), testNow), ErrNodeNotFound)
}

func TestUpdateNodeTitle(t *testing.T) {
	c := NewConversation(testNow)
	later := testNow.Add(time.Minute)

	require.NoError(t, c.Apply(MutateUpdateNodeTitle(c.RootNodeID, "  Main line "), later))
	assert.Equal(t, "Main line", c.RootNode().Title)
	assert.Equal(t, later, c.RootNode().UpdatedAt)
	assert.Equal(t, later, c.UpdatedAt)

	require.ErrorIs(t, c.Apply(MutateUpdateNodeTitle(c.RootNodeID, "   "), later), ErrEmptyTitle)
	assert.Equal(t, "Main line", c.RootNode().Title)
}

func TestSetNodePosition(t *testing.T) {
	c := NewConversation(testNow)
	apply(t, c, MutateSetNodePosition(c.RootNodeID, Position{X: 10, Y: -4}))
	require.NotNil(t, c.RootNode().Position)
	assert.Equal(t, Position{X: 10, Y: -4}, *c.RootNode().Position)

	require.ErrorIs(t, c.Apply(MutateSetNodePosition(NewNodeID(), Position{}), testNow), ErrNodeNotFound)
}

func TestCloneIsolatesMutations(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)

	next := c.Clone()
	apply(t, next, MutateBranchFromMessage(msgs[0].ID))
	apply(t, next, MutateAddMessage(NewMessage(RoleUser, "other")))
	apply(t, next, MutateRollbackNode(next.RootNodeID))

	require.NoError(t, c.Validate())
	assert.Len(t, c.Nodes, 1)
	assert.Equal(t, msgs.IDs(), c.RootNode().Messages.IDs())
	assert.Empty(t, c.RootNode().Children)
	assert.Equal(t, c.RootNodeID, c.CurrentNodeID)
}

func TestSnapshotIsDeep(t *testing.T) {
	c := NewConversation(testNow)
	addMessages(t, c, RoleUser)

	snap := c.Snapshot()
	snap.RootNode().Messages[0].Content = "changed"
	snap.RootNode().Title = "changed"

	assert.Equal(t, "user a", c.RootNode().Messages[0].Content)
	assert.Equal(t, DefaultNodeTitle, c.RootNode().Title)
}

func TestAncestryReachesRoot(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser, RoleAssistant)
	apply(t, c, MutateBranchFromMessage(msgs[1].ID))
	mid := c.CurrentNodeID
	addMessages(t, c, RoleUser)
	apply(t, c, MutateBranchFromMessage(c.CurrentMessages().Last().ID))
	leaf := c.CurrentNodeID

	assert.Equal(t, []NodeID{c.RootNodeID, mid, leaf}, c.GetAncestry(leaf))
	assert.Equal(t, 2, c.Depth(leaf))
	assert.Equal(t, -1, c.Depth(NewNodeID()))
	assert.Equal(t, []NodeID{leaf}, c.FindChildren(mid))
	assert.Empty(t, c.FindSiblings(mid))
}

func TestValidateDetectsBrokenTrees(t *testing.T) {
	c := NewConversation(testNow)
	msgs := addMessages(t, c, RoleUser)
	apply(t, c, MutateBranchFromMessage(msgs[0].ID))
	child := c.CurrentNode()

	broken := c.Snapshot()
	broken.Nodes[child.ID].ParentID = NewNodeID()
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.CurrentMessagePath = nil
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.Nodes[broken.RootNodeID].Children = append(broken.Nodes[broken.RootNodeID].Children, child.ID)
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	count := 7
	broken.Nodes[child.ID].InheritedMessageCount = &count
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.CurrentNodeID = NewNodeID()
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.Nodes[child.ID] = nil
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.Nodes[broken.RootNodeID] = nil
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)

	broken = c.Snapshot()
	broken.Nodes[broken.RootNodeID].Messages[0] = nil
	require.ErrorIs(t, broken.Validate(), ErrInvalidTree)
}

func TestNullIDsMarshalAsNull(t *testing.T) {
	type doc struct {
		Conversation ConversationID `json:"conversation" yaml:"conversation"`
		Node         NodeID         `json:"node" yaml:"node"`
		Message      MessageID      `json:"message" yaml:"message"`
	}
	c := NewConversation(testNow)

	data, err := json.Marshal(doc{Node: c.RootNodeID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversation":null,"node":"`+c.RootNodeID.String()+`","message":null}`, string(data))

	var got doc
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, doc{Node: c.RootNodeID}, got)

	got = doc{Conversation: c.ID}
	require.NoError(t, json.Unmarshal([]byte(`{"conversation":"","node":null}`), &got))
	assert.True(t, got.Conversation.IsNull())
	assert.True(t, got.Node.IsNull())
	require.Error(t, json.Unmarshal([]byte(`{"node":"nope"}`), &got))

	out, err := yaml.Marshal(doc{Node: c.RootNodeID})
	require.NoError(t, err)
	assert.Contains(t, string(out), "conversation: null")
	assert.Contains(t, string(out), "node: "+c.RootNodeID.String())
	got = doc{}
	require.NoError(t, yaml.Unmarshal(out, &got))
	assert.Equal(t, doc{Node: c.RootNodeID}, got)

	nodes, err := yaml.Marshal(c.Nodes)
	require.NoError(t, err)
	assert.Contains(t, string(nodes), c.RootNodeID.String()+":")
	assert.Contains(t, string(nodes), "parentId: null")
}
