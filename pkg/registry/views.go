package registry

import (
	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
)

// The read side of the registry: projections of the active conversation.
// Derived views go through the registry's memo.

func (r *Registry) CurrentMessages() conversation.Messages {
	return projection.CurrentMessages(r.Active())
}

func (r *Registry) CurrentNode() *conversation.Node {
	return projection.CurrentNode(r.Active())
}

func (r *Registry) ParentNode() *conversation.Node {
	return projection.ParentNode(r.Active())
}

func (r *Registry) MessagePath(messageID conversation.MessageID) conversation.Messages {
	return projection.MessagePath(r.Active(), messageID)
}

func (r *Registry) History() []projection.Turn {
	return projection.History(r.Active())
}

func (r *Registry) Branches() projection.BranchIndex {
	return r.memo.Branches(r.Active())
}

func (r *Registry) Tree(spacing projection.Spacing) projection.TreeView {
	return r.memo.Tree(r.Active(), spacing)
}

func (r *Registry) Minimap(spacing projection.Spacing) projection.Minimap {
	return r.memo.Minimap(r.Active(), spacing)
}
