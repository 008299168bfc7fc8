package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")
	require.Error(t, g.Validate())
}

func TestValidateAcceptsDAG(t *testing.T) {
	g := New()
	g.AddEdge("web", "api")
	g.AddEdge("api", "db")
	require.NoError(t, g.Validate())

	order := g.TopoOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	require.Less(t, pos["db"], pos["api"])
	require.Less(t, pos["api"], pos["web"])
}

func TestCascadeClosure(t *testing.T) {
	g := New()
	g.AddEdge("web", "api")
	g.AddEdge("api", "db")

	closure := g.CascadeClosure("db")
	require.ElementsMatch(t, []string{"api", "web"}, closure)
}

func TestRemoveNode(t *testing.T) {
	g := New()
	g.AddEdge("web", "api")
	g.RemoveNode("api")
	require.Empty(t, g.Dependents("api"))
	require.Empty(t, g.Dependencies("web"))
}
