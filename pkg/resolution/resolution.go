// Package resolution defines the solver's output value type and the
// dependency graph it carries.
//
// Per spec §9's design note, the graph may legitimately be cyclic
// (mutual dependencies at different version ranges). It is modeled as an
// arena of nodes and edges keyed by integer handles rather than via
// back-pointers, so cycles are just edges, not a structural impossibility.
package resolution

import (
	"sort"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// NodeHandle indexes a Graph's Nodes slice.
type NodeHandle int

// Edge is a directed dependency edge: From requires To, satisfied via
// Constraint (after replace/provide rewrite).
type Edge struct {
	From, To   NodeHandle
	Constraint version.Constraint
}

// Graph is an arena of package nodes and the directed edges between
// them, kept in the order they were added; TopoOrder computes a
// topological order. Lookups by PackageID are provided by Index.
type Graph struct {
	Nodes []manifest.PackageID
	Edges []Edge
	Index map[manifest.PackageID]NodeHandle
}

// NewGraph returns an empty graph ready for AddNode/AddEdge calls.
func NewGraph() *Graph {
	return &Graph{Index: map[manifest.PackageID]NodeHandle{}}
}

// AddNode registers id if not already present and returns its handle.
func (g *Graph) AddNode(id manifest.PackageID) NodeHandle {
	if h, ok := g.Index[id]; ok {
		return h
	}
	h := NodeHandle(len(g.Nodes))
	g.Nodes = append(g.Nodes, id)
	g.Index[id] = h
	return h
}

// AddEdge records a dependency edge between two already-added nodes.
func (g *Graph) AddEdge(from, to NodeHandle, c version.Constraint) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Constraint: c})
}

// adjacency returns, for each node, the list of nodes it points to.
func (g *Graph) adjacency() [][]NodeHandle {
	adj := make([][]NodeHandle, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// TopoOrder returns node handles in topological order. Cycles are broken
// deterministically by repeatedly choosing the remaining node with the
// minimum in-degree (ties broken by PackageID string), per spec §4.E's
// "approximate for cycles but deterministic" contract.
func (g *Graph) TopoOrder() []NodeHandle {
	n := len(g.Nodes)
	indeg := make([]int, n)
	for _, e := range g.Edges {
		indeg[e.To]++
	}
	adj := g.adjacency()
	done := make([]bool, n)
	order := make([]NodeHandle, 0, n)

	for len(order) < n {
		// Collect the minimum in-degree among remaining nodes.
		best := -1
		for i := 0; i < n; i++ {
			if done[i] {
				continue
			}
			if best == -1 || indeg[i] < indeg[best] ||
				(indeg[i] == indeg[best] && g.Nodes[i].String() < g.Nodes[best].String()) {
				best = i
			}
		}
		done[best] = true
		order = append(order, NodeHandle(best))
		for _, to := range adj[best] {
			if !done[to] {
				indeg[to]--
			}
		}
	}
	return order
}

// Alias maps a VCS branch-derived pseudo-version to the release version
// it should be treated as, per original_source's branch-alias support.
type Alias struct {
	Of version.Version
	As version.Version
}

// Resolution is the solver's output: the selected version per required
// package, which packages are dev-only, the dependency graph, collected
// (never solved) platform requirements, and any branch aliases.
type Resolution struct {
	Selected             map[manifest.PackageID]manifest.PackageVersion
	DevSet               map[manifest.PackageID]bool
	Graph                *Graph
	PlatformRequirements map[string]version.Constraint
	Aliases              []Alias
}

// New returns an empty Resolution ready for the solver to populate.
func New() *Resolution {
	return &Resolution{
		Selected:             map[manifest.PackageID]manifest.PackageVersion{},
		DevSet:               map[manifest.PackageID]bool{},
		Graph:                NewGraph(),
		PlatformRequirements: map[string]version.Constraint{},
	}
}

// SortedPackageIDs returns the selected package ids in case-insensitive
// sorted order, the order the lock-file serializer and the topological
// walk's tie-breaking rely on.
func (r *Resolution) SortedPackageIDs() []manifest.PackageID {
	ids := make([]manifest.PackageID, 0, len(r.Selected))
	for id := range r.Selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Validate checks the invariants spec §3 lists for a Resolution:
// no platform pseudo-package selected, and every replace target absent.
func (r *Resolution) Validate() error {
	for id := range r.Selected {
		if manifest.IsPlatform(id.String()) {
			return &InvariantViolation{Reason: "platform pseudo-package present in selection", Package: id}
		}
	}
	for id, pv := range r.Selected {
		for target, c := range pv.Replaces {
			if replaced, ok := r.Selected[target]; ok && c.Matches(replaced.Version) {
				return &InvariantViolation{Reason: "replaced package still selected", Package: target, By: id}
			}
		}
	}
	return nil
}

// InvariantViolation reports a Resolution invariant failure.
type InvariantViolation struct {
	Reason  string
	Package manifest.PackageID
	By      manifest.PackageID
}

func (e *InvariantViolation) Error() string {
	if e.By != (manifest.PackageID{}) {
		return e.Reason + ": " + e.Package.String() + " (replaced by " + e.By.String() + ")"
	}
	return e.Reason + ": " + e.Package.String()
}
