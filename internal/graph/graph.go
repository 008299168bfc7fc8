// Package graph implements the directed-acyclic dependency graph over
// process names: adjacency lists indexed by name, cycle rejection via a
// topological-sort probe, and cascade-closure computation via BFS over
// reverse edges, per spec.md §9's design notes.
package graph

import (
	"github.com/oarkflow/processguard/internal/model"
)

// Graph is a read-mostly directed graph: edges point from a process to
// the processes it depends on.
type Graph struct {
	// dependsOn[p] is the set of processes p requires.
	dependsOn map[string]map[string]struct{}
	// dependents[p] is the set of processes that require p.
	dependents map[string]map[string]struct{}
}

// New constructs an empty graph.
func New() *Graph {
	return &Graph{
		dependsOn: map[string]map[string]struct{}{},
		dependents: map[string]map[string]struct{}{},
	}
}

func (g *Graph) ensure(name string) {
	if g.dependsOn[name] == nil {
		g.dependsOn[name] = map[string]struct{}{}
	}
	if g.dependents[name] == nil {
		g.dependents[name] = map[string]struct{}{}
	}
}

// AddNode registers name with no edges, if not already present.
func (g *Graph) AddNode(name string) {
	g.ensure(name)
}

// AddEdge records that process requires dependsOn.
func (g *Graph) AddEdge(process, dependsOn string) {
	g.ensure(process)
	g.ensure(dependsOn)
	g.dependsOn[process][dependsOn] = struct{}{}
	g.dependents[dependsOn][process] = struct{}{}
}

// RemoveNode deletes name and all edges touching it.
func (g *Graph) RemoveNode(name string) {
	for dep := range g.dependsOn[name] {
		delete(g.dependents[dep], name)
	}
	delete(g.dependsOn, name)
	for p := range g.dependents[name] {
		delete(g.dependsOn[p], name)
	}
	delete(g.dependents, name)
}

// Dependencies returns the ordered-insensitive set of names process
// requires.
func (g *Graph) Dependencies(process string) []string {
	out := make([]string, 0, len(g.dependsOn[process]))
	for d := range g.dependsOn[process] {
		out = append(out, d)
	}
	return out
}

// Dependents returns the set of names that require process.
func (g *Graph) Dependents(process string) []string {
	out := make([]string, 0, len(g.dependents[process]))
	for d := range g.dependents[process] {
		out = append(out, d)
	}
	return out
}

// Validate rejects a configuration that introduces a cycle, via a
// topological-sort probe (Kahn's algorithm on dependsOn edges).
func (g *Graph) Validate() error {
	// Kahn's algorithm directly over dependsOn (n requires d): resolve
	// nodes with no unresolved dependencies first.
	remaining := map[string]map[string]struct{}{}
	for n, deps := range g.dependsOn {
		cp := make(map[string]struct{}, len(deps))
		for d := range deps {
			cp[d] = struct{}{}
		}
		remaining[n] = cp
	}

	resolved := map[string]struct{}{}
	for len(resolved) < len(remaining) {
		progressed := false
		for n, deps := range remaining {
			if _, done := resolved[n]; done {
				continue
			}
			ready := true
			for d := range deps {
				if _, ok := resolved[d]; !ok {
					ready = false
					break
				}
			}
			if ready {
				resolved[n] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			return model.NewConfigError("cyclic dependency detected among: %v", unresolved(remaining, resolved))
		}
	}
	return nil
}

func unresolved(remaining map[string]map[string]struct{}, resolved map[string]struct{}) []string {
	out := []string{}
	for n := range remaining {
		if _, ok := resolved[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// TopoOrder returns process names ordered so that every process appears
// after all of its dependencies — used for auto-start on daemon boot per
// spec.md §9's second open-question recommendation. Assumes Validate has
// already succeeded.
func (g *Graph) TopoOrder() []string {
	resolved := map[string]struct{}{}
	order := make([]string, 0, len(g.dependsOn))
	for len(order) < len(g.dependsOn) {
		for n, deps := range g.dependsOn {
			if _, done := resolved[n]; done {
				continue
			}
			ready := true
			for d := range deps {
				if _, ok := resolved[d]; !ok {
					ready = false
					break
				}
			}
			if ready {
				resolved[n] = struct{}{}
				order = append(order, n)
			}
		}
	}
	return order
}

// CascadeClosure returns the set of process names (excluding origin)
// whose transitive dependency closure contains origin — i.e. everything
// that, directly or indirectly, requires origin. Computed by BFS over
// reverse edges (dependents), per spec.md §9.
func (g *Graph) CascadeClosure(origin string) []string {
	visited := map[string]struct{}{origin: {}}
	queue := []string{origin}
	out := []string{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dependent := range g.dependents[cur] {
			if _, ok := visited[dependent]; ok {
				continue
			}
			visited[dependent] = struct{}{}
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	return out
}
