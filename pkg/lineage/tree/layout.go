package tree

import "github.com/prepline/prepline/pkg/lineage"

// Layout geometry. Row height is fixed per depth level; siblings spread
// symmetrically around their parent's horizontal position; independent
// roots are spaced apart so their subtrees do not share an origin.
const (
	rowHeight   = 100.0
	siblingSpan = 160.0
	rootSpan    = 320.0
)

// Position is a 2D layout coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PositionedNode is the rendering contract for one laid-out version.
type PositionedNode struct {
	ID       int64           `json:"id"`
	Version  lineage.Version `json:"-"`
	Position Position        `json:"position"`
}

// Edge is one directed parent→child connection. Edges carry no semantic
// weight beyond connectivity.
type Edge struct {
	Source int64 `json:"source"`
	Target int64 `json:"target"`
}

// Layout assigns coordinates with a depth-first traversal: the vertical
// coordinate is rowHeight × depth, and each child sits at its parent's
// horizontal coordinate plus an evenly spaced offset among its siblings.
// Output is fully deterministic given identical input ordering, and one
// edge is emitted per (parent, child) pair.
func Layout(f *Forest) ([]PositionedNode, []Edge) {
	nodes := make([]PositionedNode, 0, f.NodeCount())
	edges := make([]Edge, 0, f.NodeCount())

	var walk func(n *Node, depth int, x float64)
	walk = func(n *Node, depth int, x float64) {
		nodes = append(nodes, PositionedNode{
			ID:       n.ID,
			Version:  n.Version,
			Position: Position{X: x, Y: rowHeight * float64(depth)},
		})
		mid := float64(len(n.Children)-1) / 2
		for i, child := range n.Children {
			edges = append(edges, Edge{Source: n.ID, Target: child.ID})
			walk(child, depth+1, x+(float64(i)-mid)*siblingSpan)
		}
	}

	for i, root := range f.Roots {
		walk(root, 0, float64(i)*rootSpan)
	}

	return nodes, edges
}
