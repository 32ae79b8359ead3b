package projection

import (
	"math"
	"sort"

	"github.com/go-go-golems/locus/pkg/conversation"
)

type NodeState string

const (
	NodeCurrent  NodeState = "current"
	NodeAncestor NodeState = "ancestor"
	NodeOffPath  NodeState = "offPath"
)

const (
	maxDisplayedModels = 3
	canvasMargin       = 100
)

// MinimapNode is a node of the minimap. Models lists up to three distinct
// model ids used by the node's assistant messages; ExtraModels counts the rest.
type MinimapNode struct {
	ID           conversation.NodeID `json:"id"`
	Title        string              `json:"title"`
	State        NodeState           `json:"state"`
	Depth        int                 `json:"depth"`
	X            float64             `json:"x"`
	Y            float64             `json:"y"`
	SiblingCount int                 `json:"siblingCount"`
	ChildCount   int                 `json:"childCount"`
	Models       []string            `json:"models"`
	ExtraModels  int                 `json:"extraModels"`
}

func (n MinimapNode) HasSiblings() bool {
	return n.SiblingCount > 0
}

// Minimap is the flattened map sorted by depth then x, together with the
// canvas bounds.
type Minimap struct {
	Nodes  []MinimapNode `json:"nodes"`
	Edges  []TreeEdge    `json:"edges"`
	MinX   float64       `json:"minX"`
	MinY   float64       `json:"minY"`
	Width  float64       `json:"width"`
	Height float64       `json:"height"`
}

// BuildMinimap computes the minimap. User-set positions are ignored here, the
// minimap always shows the computed layout.
func BuildMinimap(c *conversation.Conversation, spacing Spacing) Minimap {
	return minimapFromLayout(c, ComputeLayout(c, spacing))
}

func minimapFromLayout(c *conversation.Conversation, layout Layout) Minimap {
	ret := Minimap{Nodes: []MinimapNode{}, Edges: []TreeEdge{}}
	if c == nil {
		return ret
	}
	path := ActivePath(c)

	for _, id := range depthFirst(c) {
		node, _ := c.Node(id)
		placement := layout[id]

		state := NodeOffPath
		switch {
		case id == c.CurrentNodeID:
			state = NodeCurrent
		case path[id]:
			state = NodeAncestor
		}

		models := NodeModels(node)
		extra := 0
		if len(models) > maxDisplayedModels {
			extra = len(models) - maxDisplayedModels
			models = models[:maxDisplayedModels]
		}

		ret.Nodes = append(ret.Nodes, MinimapNode{
			ID:           id,
			Title:        node.Title,
			State:        state,
			Depth:        placement.Depth,
			X:            placement.Position.X,
			Y:            placement.Position.Y,
			SiblingCount: len(c.FindSiblings(id)),
			ChildCount:   len(c.FindChildren(id)),
			Models:       models,
			ExtraModels:  extra,
		})
		for _, childID := range node.Children {
			ret.Edges = append(ret.Edges, TreeEdge{
				From:     id,
				To:       childID,
				Animated: path[id] && path[childID],
			})
		}
	}

	sort.SliceStable(ret.Nodes, func(i, j int) bool {
		a, b := ret.Nodes[i], ret.Nodes[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.X < b.X
	})

	if len(ret.Nodes) == 0 {
		return ret
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range ret.Nodes {
		minX = math.Min(minX, n.X)
		maxX = math.Max(maxX, n.X)
		minY = math.Min(minY, n.Y)
		maxY = math.Max(maxY, n.Y)
	}
	ret.MinX, ret.MinY = minX, minY
	ret.Width = maxX - minX + canvasMargin
	ret.Height = maxY - minY + canvasMargin

	return ret
}

// NodeModels returns the distinct model ids of the node's assistant
// messages, in order of first use.
func NodeModels(n *conversation.Node) []string {
	ret := []string{}
	seen := map[string]bool{}
	for _, m := range n.Messages {
		if m.Role != conversation.RoleAssistant || m.ModelID == "" || seen[m.ModelID] {
			continue
		}
		seen[m.ModelID] = true
		ret = append(ret, m.ModelID)
	}
	return ret
}
