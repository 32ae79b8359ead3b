package projection

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/go-go-golems/locus/pkg/conversation"
)

const DefaultMemoSize = 128

type viewKind int

const (
	kindBranches viewKind = iota
	kindLayout
	kindTree
	kindMinimap
)

type memoKey struct {
	kind    viewKind
	id      conversation.ConversationID
	version int64
	current conversation.NodeID
	spacing Spacing
}

// Memo caches derived views keyed by conversation id, version, current node
// and spacing. Values handed out are shared between callers and must be
// treated as read-only. A Memo is safe for concurrent use.
//
// Versions are process-local, so the cache has to be purged whenever
// conversations are replaced wholesale (e.g. after loading a state).
type Memo struct {
	cache *lru.Cache[memoKey, any]
}

func NewMemo(size int) (*Memo, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	cache, err := lru.New[memoKey, any](size)
	if err != nil {
		return nil, errors.Wrap(err, "could not create view cache")
	}
	return &Memo{cache: cache}, nil
}

func keyFor(kind viewKind, c *conversation.Conversation, spacing Spacing) memoKey {
	return memoKey{
		kind:    kind,
		id:      c.ID,
		version: c.Version,
		current: c.CurrentNodeID,
		spacing: spacing,
	}
}

func memoized[T any](m *Memo, key memoKey, compute func() T) T {
	if v, ok := m.cache.Get(key); ok {
		if ret, ok := v.(T); ok {
			return ret
		}
	}
	ret := compute()
	m.cache.Add(key, ret)
	return ret
}

func (m *Memo) Branches(c *conversation.Conversation) BranchIndex {
	if c == nil {
		return BranchIndex{}
	}
	return memoized(m, keyFor(kindBranches, c, Spacing{}), func() BranchIndex {
		return Branches(c)
	})
}

func (m *Memo) Layout(c *conversation.Conversation, spacing Spacing) Layout {
	if c == nil {
		return Layout{}
	}
	return memoized(m, keyFor(kindLayout, c, spacing), func() Layout {
		return ComputeLayout(c, spacing)
	})
}

func (m *Memo) Tree(c *conversation.Conversation, spacing Spacing) TreeView {
	if c == nil {
		return treeFromLayout(nil, nil)
	}
	return memoized(m, keyFor(kindTree, c, spacing), func() TreeView {
		return treeFromLayout(c, m.Layout(c, spacing))
	})
}

func (m *Memo) Minimap(c *conversation.Conversation, spacing Spacing) Minimap {
	if c == nil {
		return minimapFromLayout(nil, nil)
	}
	return memoized(m, keyFor(kindMinimap, c, spacing), func() Minimap {
		return minimapFromLayout(c, m.Layout(c, spacing))
	})
}

func (m *Memo) Len() int {
	return m.cache.Len()
}

func (m *Memo) Purge() {
	m.cache.Purge()
}
