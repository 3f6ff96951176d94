// Package tree converts the flat version list of a task into its lineage
// forest and computes deterministic layout coordinates for inspection and
// selection surfaces.
package tree

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/prepline/prepline/pkg/lineage"
)

// Node is one version in the forest with its attached children.
type Node struct {
	ID       int64
	Version  lineage.Version
	Children []*Node
}

// Forest is the set of version trees for a task, rooted at parentless
// versions. Nodes are indexed by id for O(1) lookup.
type Forest struct {
	Roots []*Node

	index map[int64]*Node
}

// NodeCount returns the number of distinct versions in the forest.
func (f *Forest) NodeCount() int { return len(f.index) }

// Node returns the node for a version id, or nil.
func (f *Forest) Node(id int64) *Node { return f.index[id] }

// Build groups versions by parent pointer into a forest. Entries with a nil
// parent become roots; every other entry is attached as a child of its
// parent node. Duplicate entries for the same id are collapsed to the first
// occurrence, tolerating malformed duplicate records from upstream. Children
// are ordered by creation time (id as tie-break), matching creation order.
//
// An entry whose parent id is absent from the input yields a
// ConsistencyError; the orphan is not promoted to a root.
func Build(versions []lineage.Version) (*Forest, error) {
	f := &Forest{index: make(map[int64]*Node, len(versions))}

	// First pass: arena of nodes, duplicates dropped.
	seen := mapset.NewThreadUnsafeSet[int64]()
	order := make([]int64, 0, len(versions))
	for _, v := range versions {
		if !seen.Add(v.ID) {
			continue
		}
		f.index[v.ID] = &Node{ID: v.ID, Version: v}
		order = append(order, v.ID)
	}

	// Second pass: attach children in input order. Parents always precede
	// children by creation order, so descent from roots terminates.
	for _, id := range order {
		n := f.index[id]
		if n.Version.ParentVersionID == nil {
			f.Roots = append(f.Roots, n)
			continue
		}
		parent, ok := f.index[*n.Version.ParentVersionID]
		if !ok {
			return nil, &lineage.ConsistencyError{VersionID: id, ParentID: *n.Version.ParentVersionID}
		}
		parent.Children = append(parent.Children, n)
	}

	for _, n := range f.index {
		sortByCreation(n.Children)
	}
	sortByCreation(f.Roots)

	return f, nil
}

func sortByCreation(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Version, nodes[j].Version
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
