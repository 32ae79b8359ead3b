package projection

import (
	"github.com/go-go-golems/locus/pkg/conversation"
)

// Spacing is the distance between siblings (Horizontal) and between depth
// levels (Vertical).
type Spacing struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
}

var (
	TreeSpacing    = Spacing{Horizontal: 320, Vertical: 150}
	MinimapSpacing = Spacing{Horizontal: 24, Vertical: 32}
)

const (
	previewRunes = 80
	emptyPreview = "Empty branch"
)

// Placement is the computed coordinate of a node.
type Placement struct {
	Position conversation.Position
	Depth    int
}

// Layout holds the computed placement of every node reachable from the root.
// User overrides are not applied; see Resolve.
type Layout map[conversation.NodeID]Placement

// ComputeLayout places the root at the origin and every child at
// parentX + (index - (siblings-1)/2) * spacing.Horizontal, with y
// proportional to the depth.
func ComputeLayout(c *conversation.Conversation, spacing Spacing) Layout {
	ret := Layout{}
	if c == nil {
		return ret
	}

	var place func(id conversation.NodeID, depth int, x float64)
	place = func(id conversation.NodeID, depth int, x float64) {
		node, ok := c.Node(id)
		if !ok {
			return
		}
		if _, seen := ret[id]; seen {
			return
		}
		ret[id] = Placement{
			Position: conversation.Position{X: x, Y: float64(depth) * spacing.Vertical},
			Depth:    depth,
		}
		n := len(node.Children)
		for i, childID := range node.Children {
			offset := float64(i) - float64(n-1)/2
			place(childID, depth+1, x+offset*spacing.Horizontal)
		}
	}
	place(c.RootNodeID, 0, 0)

	return ret
}

// Resolve returns the node's user-set position when there is one, its
// computed position otherwise.
func (l Layout) Resolve(n *conversation.Node) conversation.Position {
	if n.Position != nil {
		return *n.Position
	}
	return l[n.ID].Position
}

// TreeNode is one card of the tree view.
type TreeNode struct {
	ID           conversation.NodeID   `json:"id"`
	Title        string                `json:"title"`
	MessageCount int                   `json:"messageCount"`
	Preview      string                `json:"preview"`
	Active       bool                  `json:"active"`
	Branch       bool                  `json:"branch"`
	Depth        int                   `json:"depth"`
	Position     conversation.Position `json:"position"`
}

// TreeEdge connects a parent to a child. The edge into the current node is
// flagged as animated.
type TreeEdge struct {
	From     conversation.NodeID `json:"from"`
	To       conversation.NodeID `json:"to"`
	Animated bool                `json:"animated"`
}

type TreeView struct {
	Nodes []TreeNode `json:"nodes"`
	Edges []TreeEdge `json:"edges"`
}

// Tree builds the tree view in depth-first order from the root. The root card
// shows the conversation title, the others their node title.
func Tree(c *conversation.Conversation, spacing Spacing) TreeView {
	return treeFromLayout(c, ComputeLayout(c, spacing))
}

func treeFromLayout(c *conversation.Conversation, layout Layout) TreeView {
	ret := TreeView{Nodes: []TreeNode{}, Edges: []TreeEdge{}}
	if c == nil {
		return ret
	}

	for _, id := range depthFirst(c) {
		node, _ := c.Node(id)
		title := node.Title
		if node.IsRoot() {
			title = c.Title
		}
		preview := emptyPreview
		if last := node.Messages.Last(); last != nil && last.Content != "" {
			preview = truncateRunes(last.Content, previewRunes)
		}

		ret.Nodes = append(ret.Nodes, TreeNode{
			ID:           id,
			Title:        title,
			MessageCount: len(node.Messages),
			Preview:      preview,
			Active:       id == c.CurrentNodeID,
			Branch:       !node.IsRoot(),
			Depth:        layout[id].Depth,
			Position:     layout.Resolve(node),
		})
		if !node.IsRoot() {
			ret.Edges = append(ret.Edges, TreeEdge{
				From:     node.ParentID,
				To:       id,
				Animated: id == c.CurrentNodeID,
			})
		}
	}

	return ret
}

// depthFirst lists the nodes reachable from the root in pre-order, children
// in creation order.
func depthFirst(c *conversation.Conversation) []conversation.NodeID {
	var ret []conversation.NodeID
	seen := map[conversation.NodeID]bool{}

	var walk func(id conversation.NodeID)
	walk = func(id conversation.NodeID) {
		node, ok := c.Node(id)
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		ret = append(ret, id)
		for _, childID := range node.Children {
			walk(childID)
		}
	}
	walk(c.RootNodeID)

	return ret
}
