package registry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
)

// tickingClock advances one second per call.
func tickingClock() Clock {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(WithClock(tickingClock()))
	require.NoError(t, err)
	return r
}

func requireConsistent(t *testing.T, r *Registry) {
	t.Helper()
	for _, s := range r.List() {
		c, ok := r.Conversation(s.ID)
		require.True(t, ok)
		require.NoError(t, c.Validate())
	}
}

func TestCreateConversationActivates(t *testing.T) {
	r := newRegistry(t)
	assert.True(t, r.ActiveID().IsNull())
	assert.Nil(t, r.Active())
	assert.Empty(t, r.CurrentMessages())

	id := r.CreateConversation()
	assert.Equal(t, id, r.ActiveID())
	require.NotNil(t, r.CurrentNode())
	assert.Equal(t, r.Active().RootNodeID, r.CurrentNode().ID)
}

func TestAddMessageWithoutActiveConversation(t *testing.T) {
	r := newRegistry(t)
	id, err := r.AddMessage(conversation.RoleUser, "hello")
	require.ErrorIs(t, err, ErrNoActiveConversation)
	assert.True(t, id.IsNull())
	assert.Equal(t, 0, r.Len())
}

func TestTitleDerivation(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	_, err := r.AddMessage(conversation.RoleUser, "Hello world, this is a long first message")
	require.NoError(t, err)
	assert.Equal(t, "Hello world, this is a long fi…", r.Active().Title)
}

func TestMissingTargetsLeaveStateUntouched(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	_, err := r.AddMessage(conversation.RoleUser, "q")
	require.NoError(t, err)
	before := r.Active()

	require.ErrorIs(t, r.BranchFromMessage(conversation.NewMessageID()), conversation.ErrMessageNotFound)
	require.ErrorIs(t, r.BranchFromNode(conversation.NewNodeID()), conversation.ErrNodeNotFound)
	require.ErrorIs(t, r.NavigateToNode(conversation.NewNodeID()), conversation.ErrNodeNotFound)
	require.ErrorIs(t, r.RollbackNode(conversation.NewNodeID()), conversation.ErrNodeNotFound)
	require.ErrorIs(t, r.UpdateNodeTitle(before.RootNodeID, " \t "), conversation.ErrEmptyTitle)
	require.ErrorIs(t, r.SetNodePosition(conversation.NewNodeID(), conversation.Position{}), conversation.ErrNodeNotFound)
	require.ErrorIs(t, r.SelectConversation(conversation.NewConversationID()), ErrConversationNotFound)
	require.ErrorIs(t, r.DeleteConversation(conversation.NewConversationID()), ErrConversationNotFound)

	assert.Same(t, before, r.Active())
	assert.Equal(t, 1, r.Len())
}

func TestMutationsKeepPathConsistent(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	m1, err := r.AddMessage(conversation.RoleUser, "one")
	require.NoError(t, err)
	m2, err := r.AddMessage(conversation.RoleAssistant, "two", conversation.WithModelID("m"))
	require.NoError(t, err)
	root := r.Active().RootNodeID

	steps := []func() error{
		func() error { return r.BranchFromMessage(m1) },
		func() error { _, err := r.AddMessage(conversation.RoleUser, "three"); return err },
		func() error { return r.NavigateToNode(root) },
		func() error { return r.BranchFromMessage(m2) },
		func() error { return r.BranchFromNode(root) },
		func() error { return r.Backtrack(1) },
		func() error { return r.Backtrack(3) },
		func() error { return r.RollbackNode(root) },
		func() error { return r.UpdateNodeTitle(root, "main") },
		func() error { return r.SetNodePosition(root, conversation.Position{X: 1, Y: 2}) },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		requireConsistent(t, r)
		assert.Equal(t, r.CurrentMessages().IDs(), r.Active().CurrentMessagePath, "step %d", i)
	}
	assert.Len(t, r.Active().Nodes, 4)
}

func TestBranchIndexThroughRegistry(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	_, err := r.AddMessage(conversation.RoleUser, "one")
	require.NoError(t, err)
	m2, err := r.AddMessage(conversation.RoleAssistant, "two")
	require.NoError(t, err)
	root := r.Active().RootNodeID

	require.NoError(t, r.BranchFromMessage(m2))
	require.NoError(t, r.NavigateToNode(root))
	require.NoError(t, r.BranchFromMessage(m2))
	require.NoError(t, r.NavigateToNode(root))

	index := r.Branches()
	require.Len(t, index[m2], 2)
	assert.Equal(t, r.Active().RootNode().Children, []conversation.NodeID{index[m2][0].NodeID, index[m2][1].NodeID})
}

func TestConversationsAreIsolated(t *testing.T) {
	r := newRegistry(t)
	first := r.CreateConversation()
	_, err := r.AddMessage(conversation.RoleUser, "first")
	require.NoError(t, err)
	firstConv := r.Active()

	r.CreateConversation()
	_, err = r.AddMessage(conversation.RoleUser, "second")
	require.NoError(t, err)

	c, ok := r.Conversation(first)
	require.True(t, ok)
	assert.Same(t, firstConv, c)
	assert.Len(t, c.CurrentMessages(), 1)
}

func TestListSortedByRecency(t *testing.T) {
	r := newRegistry(t)
	a := r.CreateConversation()
	b := r.CreateConversation()
	c := r.CreateConversation()

	require.NoError(t, r.SelectConversation(a))
	_, err := r.AddMessage(conversation.RoleUser, "bump")
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []conversation.ConversationID{a, c, b}, []conversation.ConversationID{list[0].ID, list[1].ID, list[2].ID})
	assert.True(t, list[0].Active)
}

func TestDeleteActiveFallsBack(t *testing.T) {
	r := newRegistry(t)
	a := r.CreateConversation()
	b := r.CreateConversation()
	c := r.CreateConversation()

	require.NoError(t, r.DeleteConversation(c))
	assert.Equal(t, b, r.ActiveID())

	require.NoError(t, r.DeleteConversation(a))
	assert.Equal(t, b, r.ActiveID())

	require.NoError(t, r.DeleteConversation(b))
	assert.True(t, r.ActiveID().IsNull())
	assert.Nil(t, r.Active())
}

func TestNavigateWithOrigin(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	assert.Equal(t, DefaultTransitionOrigin, r.Session().TransitionOrigin)

	require.Error(t, r.NavigateToNodeWithOrigin(conversation.NewNodeID(), conversation.Position{X: 1, Y: 1}))
	assert.Equal(t, DefaultTransitionOrigin, r.Session().TransitionOrigin)

	require.NoError(t, r.NavigateToNodeWithOrigin(r.Active().RootNodeID, conversation.Position{X: 10, Y: 20}))
	assert.Equal(t, conversation.Position{X: 10, Y: 20}, r.Session().TransitionOrigin)
}

func TestSessionDefaultsAndSetters(t *testing.T) {
	r := newRegistry(t)
	s := r.Session()
	assert.Equal(t, DefaultSelectedModel, s.SelectedModel)
	assert.Equal(t, ViewChat, s.ViewMode)
	assert.False(t, s.Loading)

	r.SetViewMode(ViewTree)
	r.SetSelectedModel("openai/gpt-4o")
	r.SetAPIKey("key")
	r.SetError("boom")
	require.True(t, r.TryStartLoading())
	require.False(t, r.TryStartLoading())

	s = r.Session()
	assert.Equal(t, ViewTree, s.ViewMode)
	assert.Equal(t, "openai/gpt-4o", s.SelectedModel)
	assert.Equal(t, "key", s.APIKey)
	assert.Equal(t, "boom", s.Error)
	assert.True(t, s.Loading)

	r.SetLoading(false)
	r.SetError("")
	assert.False(t, r.Session().Loading)
	assert.Empty(t, r.Session().Error)
}

func TestStateRoundTrip(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()
	_, err := r.AddMessage(conversation.RoleUser, "hello")
	require.NoError(t, err)
	m, err := r.AddMessage(conversation.RoleAssistant, "hi", conversation.WithMode(conversation.ModeWebSearch),
		conversation.WithSources([]conversation.SearchResult{{Title: "t", URL: "https://example.com", Snippet: "s"}}))
	require.NoError(t, err)
	require.NoError(t, r.BranchFromMessage(m))
	require.NoError(t, r.SetNodePosition(r.Active().CurrentNodeID, conversation.Position{X: 3, Y: 4}))
	r.CreateConversation()
	r.SetAPIKey("secret")
	r.SetSelectedModel("anthropic/claude-3.5-sonnet")
	r.SetError("transient")

	data, err := json.Marshal(r.State())
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	restored := newRegistry(t)
	restored.Restore(&decoded)

	again, err := json.Marshal(restored.State())
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	assert.Equal(t, r.ActiveID(), restored.ActiveID())
	assert.Equal(t, "secret", restored.Session().APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", restored.Session().SelectedModel)
	assert.Empty(t, restored.Session().Error)
	requireConsistent(t, restored)
}

func TestRestoreDropsInvalidConversations(t *testing.T) {
	r := newRegistry(t)
	good := r.CreateConversation()
	bad := r.CreateConversation()

	s := r.State()
	s.Conversations[bad].CurrentNodeID = conversation.NewNodeID()
	s.ActiveConversationID = bad

	restored := newRegistry(t)
	restored.Restore(s)
	assert.Equal(t, 1, restored.Len())
	assert.Equal(t, good, restored.ActiveID())

	restored.Restore(nil)
	assert.Equal(t, 0, restored.Len())
	assert.True(t, restored.ActiveID().IsNull())
}

func TestRestoreDropsNullNodesAndMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c map[string]interface{})
	}{
		{
			name: "null node",
			mutate: func(c map[string]interface{}) {
				c["nodes"].(map[string]interface{})[c["rootNodeId"].(string)] = nil
			},
		},
		{
			name: "null message",
			mutate: func(c map[string]interface{}) {
				root := c["nodes"].(map[string]interface{})[c["rootNodeId"].(string)].(map[string]interface{})
				root["messages"] = []interface{}{nil}
			},
		},
		{
			name: "null message after a valid one",
			mutate: func(c map[string]interface{}) {
				root := c["nodes"].(map[string]interface{})[c["rootNodeId"].(string)].(map[string]interface{})
				root["messages"] = append(root["messages"].([]interface{}), nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			good := r.CreateConversation()
			bad := r.CreateConversation()
			_, err := r.AddMessage(conversation.RoleUser, "hello")
			require.NoError(t, err)

			data, err := json.Marshal(r.State())
			require.NoError(t, err)
			var doc map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &doc))
			tt.mutate(doc["conversations"].(map[string]interface{})[bad.String()].(map[string]interface{}))
			data, err = json.Marshal(doc)
			require.NoError(t, err)

			var s State
			require.NoError(t, json.Unmarshal(data, &s))
			restored := newRegistry(t)
			require.NotPanics(t, func() { restored.Restore(&s) })
			assert.Equal(t, 1, restored.Len())
			assert.Equal(t, good, restored.ActiveID())
		})
	}
}

func TestStateIsDetached(t *testing.T) {
	r := newRegistry(t)
	id := r.CreateConversation()
	s := r.State()
	s.Conversations[id].Title = "changed"
	assert.Equal(t, conversation.DefaultConversationTitle, r.Active().Title)
}

func TestViewsUseMemo(t *testing.T) {
	memo, err := projection.NewMemo(8)
	require.NoError(t, err)
	r, err := New(WithClock(tickingClock()), WithMemo(memo))
	require.NoError(t, err)
	r.CreateConversation()

	tree := r.Tree(projection.TreeSpacing)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, 2, memo.Len())

	mm := r.Minimap(projection.MinimapSpacing)
	assert.Equal(t, projection.NodeCurrent, mm.Nodes[0].State)

	r.Restore(r.State())
	assert.Equal(t, 0, memo.Len())
}

func TestConcurrentMutations(t *testing.T) {
	r := newRegistry(t)
	r.CreateConversation()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = r.AddMessage(conversation.RoleUser, "x")
				_ = r.Tree(projection.TreeSpacing)
				_ = r.CurrentMessages()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, r.CurrentMessages(), 200)
	requireConsistent(t, r)
}
