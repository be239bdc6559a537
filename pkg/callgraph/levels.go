package callgraph

import (
	"sort"
)

// findBackedges walks the graph depth-first from the root and classifies every
// edge whose target is already on the traversal stack as a back-edge. The
// target function is recorded as recursive. Back-edges are excluded from all
// acyclic traversals so that level and bottom/top computation terminate.
// It returns the set of functions reachable from the root.
func (g *Graph) findBackedges() map[string]struct{} {
	root, ok := g.nodes[RootFunc]
	if !ok {
		return nil
	}

	// Remaining unvisited callees per traversed node.
	pending := map[string][]string{
		RootFunc: append([]string{}, root.Callees...),
	}
	stack := []string{RootFunc}
	onStack := map[string]struct{}{RootFunc: {}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		edges := pending[current]
		if len(edges) == 0 {
			stack = stack[:len(stack)-1]
			delete(onStack, current)
			continue
		}
		next := edges[len(edges)-1]
		pending[current] = edges[:len(edges)-1]

		if _, cyclic := onStack[next]; cyclic {
			g.backedges[current][next] = struct{}{}
			g.recursive[next] = struct{}{}
			continue
		}
		if _, visited := pending[next]; !visited {
			pending[next] = append([]string{}, g.nodes[next].Callees...)
			stack = append(stack, next)
			onStack[next] = struct{}{}
		}
	}

	reached := make(map[string]struct{}, len(pending))
	for name := range pending {
		reached[name] = struct{}{}
	}
	return reached
}

// assignLevels iteratively builds the level partitioning: a function enters a
// new level once all of its reachable non-back-edge callers have been assigned
// one. Callers outside the reachable set never receive a level and must not
// block resolution. Every cycle reachable from the root carries at least one
// back-edge, so the iteration terminates with all reachable functions
// resolved.
func (g *Graph) assignLevels(reachable map[string]struct{}) {
	root, ok := g.nodes[RootFunc]
	if !ok {
		return
	}
	root.Level = 0
	g.levels = [][]string{{RootFunc}}

	resolved := map[string]struct{}{RootFunc: {}}
	candidates := make(map[string]struct{})
	frontier := []string{RootFunc}

	for len(frontier) > 0 {
		for _, name := range frontier {
			for _, callee := range g.nodes[name].Callees {
				if g.Backedge(name, callee) {
					continue
				}
				if _, done := resolved[callee]; !done {
					candidates[callee] = struct{}{}
				}
			}
		}

		next := make([]string, 0)
		for name := range candidates {
			if g.callersResolved(name, resolved, reachable) {
				next = append(next, name)
			}
		}
		if len(next) == 0 {
			break
		}

		level := len(g.levels)
		sort.Strings(next)
		for _, name := range next {
			delete(candidates, name)
			resolved[name] = struct{}{}
			g.nodes[name].Level = level
		}
		g.levels = append(g.levels, next)
		frontier = next
	}
}

func (g *Graph) callersResolved(name string, resolved, reachable map[string]struct{}) bool {
	for _, caller := range g.nodes[name].Callers {
		if _, ok := reachable[caller]; !ok {
			continue
		}
		if g.Backedge(caller, name) {
			continue
		}
		if _, done := resolved[caller]; !done {
			return false
		}
	}
	return true
}
