package resolution

import (
	"testing"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

func pid(s string) manifest.PackageID {
	id, err := manifest.ParsePackageID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestTopoOrderDeterministicOnCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(pid("a/a"))
	b := g.AddNode(pid("a/b"))
	g.AddEdge(a, b, version.Any())
	g.AddEdge(b, a, version.Any())

	order1 := g.TopoOrder()
	order2 := g.TopoOrder()
	if len(order1) != 2 || len(order2) != 2 {
		t.Fatalf("expected both nodes present in topo order")
	}
	if order1[0] != order2[0] || order1[1] != order2[1] {
		t.Errorf("topo order on a cycle must be deterministic across calls, got %v then %v", order1, order2)
	}
}

func TestSelfDependencySelectedOnce(t *testing.T) {
	r := New()
	id := pid("a/a")
	r.Selected[id] = manifest.PackageVersion{ID: id}
	g := r.Graph
	h := g.AddNode(id)
	g.AddEdge(h, h, version.Any())

	if len(r.Selected) != 1 {
		t.Errorf("a cyclic self-dependency must still select the package exactly once")
	}
}
