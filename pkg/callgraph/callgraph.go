package callgraph

import (
	"sort"
)

// Build populates the graph from a raw "function -> callees" mapping produced
// by an external extractor. It creates the nodes and deduplicated edges,
// classifies back-edges with a DFS from the root and assigns levels.
// Functions unreachable from the root are retained with UnreachableLevel.
func (g *Graph) Build(raw map[string][]string) error {
	if len(raw) == 0 {
		return ErrEmptyGraph
	}
	if _, ok := raw[RootFunc]; !ok {
		return ErrMissingRoot
	}

	// Nodes first: both the mapping keys and any callee that appears only on
	// the right-hand side of an edge.
	for name, callees := range raw {
		g.getOrInsert(name)
		for _, callee := range callees {
			g.getOrInsert(callee)
		}
	}

	// Edges, skipping duplicates. Self loops are dropped from the edge set and
	// recorded as direct recursion instead.
	for name, callees := range raw {
		node := g.nodes[name]
		for _, callee := range callees {
			if callee == name {
				g.recursive[name] = struct{}{}
				continue
			}
			addEdge(node, g.nodes[callee])
		}
	}

	for name, node := range g.nodes {
		node.Leaf = len(node.Callees) == 0
		g.backedges[name] = make(map[string]struct{})
	}

	reachable := g.findBackedges()
	g.assignLevels(reachable)
	g.dirty = true

	g.logger.Debug().
		Int("functions", len(g.nodes)).
		Int("levels", len(g.levels)).
		Int("recursive", len(g.recursive)).
		Msg("call graph built")

	return nil
}

func (g *Graph) getOrInsert(name string) *Node {
	node, ok := g.nodes[name]
	if !ok {
		node = newNode(name)
		g.nodes[name] = node
	}
	return node
}

func addEdge(caller, callee *Node) {
	if !contains(caller.Callees, callee.Name) {
		caller.Callees = append(caller.Callees, callee.Name)
	}
	if !contains(callee.Callers, caller.Name) {
		callee.Callers = append(callee.Callers, caller.Name)
	}
}

// RemoveOrFilter prunes the given functions from the graph. With soft set the
// nodes only receive the filtered flag and stay in the structure for
// diagnostics and diffing; otherwise they are deleted and the caller/callee
// back-references of their neighbours repaired. The root function and
// functions flagged as changed are never pruned. The operation is idempotent.
func (g *Graph) RemoveOrFilter(names []string, soft bool) {
	ordered := g.SortByLevel(names, true)
	for _, name := range ordered {
		if name == RootFunc {
			continue
		}
		node, ok := g.nodes[name]
		if !ok || node.Diff {
			continue
		}
		if soft {
			node.Filtered = true
			continue
		}
		g.remove(node)
	}
	g.dirty = true
}

func (g *Graph) remove(node *Node) {
	for _, caller := range node.Callers {
		if parent, ok := g.nodes[caller]; ok {
			parent.Callees = removeName(parent.Callees, node.Name)
			parent.Leaf = len(parent.Callees) == 0
		}
	}
	for _, callee := range node.Callees {
		if child, ok := g.nodes[callee]; ok {
			child.Callers = removeName(child.Callers, node.Name)
		}
	}
	if node.Level >= 0 && node.Level < len(g.levels) {
		g.levels[node.Level] = removeName(g.levels[node.Level], node.Name)
	}
	delete(g.backedges, node.Name)
	for _, targets := range g.backedges {
		delete(targets, node.Name)
	}
	delete(g.recursive, node.Name)
	delete(g.nodes, node.Name)
}

// Functions returns the "function name -> sampling value" mapping of functions
// that should be instrumented: the non-filtered set, restricted to changed
// functions when diffOnly is set. The root function is always included.
func (g *Graph) Functions(diffOnly bool) map[string]int {
	funcs := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		include := !node.Filtered
		if diffOnly {
			include = node.Diff
		}
		if include {
			funcs[name] = node.Sample
		}
	}
	if root, ok := g.nodes[RootFunc]; ok {
		funcs[RootFunc] = root.Sample
	}
	return funcs
}

// SetDiff flags the given functions as changed since the previous version.
// A previously filtered function that changed is unfiltered again, since its
// past behaviour is no longer predictive.
func (g *Graph) SetDiff(names []string) {
	for _, name := range names {
		if node, ok := g.nodes[name]; ok {
			node.Filtered = false
			node.Diff = true
		}
	}
	g.dirty = true
}

// FilteredFuncs returns the sorted set of soft-removed functions.
func (g *Graph) FilteredFuncs() []string {
	filtered := make([]string, 0)
	for name, node := range g.nodes {
		if node.Filtered {
			filtered = append(filtered, name)
		}
	}
	sort.Strings(filtered)
	return filtered
}

// DiffFuncs returns the sorted set of functions flagged as changed.
func (g *Graph) DiffFuncs() []string {
	diff := make([]string, 0)
	for name, node := range g.nodes {
		if node.Diff {
			diff = append(diff, name)
		}
	}
	sort.Strings(diff)
	return diff
}

// SortByLevel orders the given function names by their level. Functions
// missing from the graph are dropped.
func (g *Graph) SortByLevel(names []string, descending bool) []string {
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := g.nodes[name]; ok {
			ordered = append(ordered, name)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		li, lj := g.nodes[ordered[i]].Level, g.nodes[ordered[j]].Level
		if descending {
			return li > lj
		}
		return li < lj
	})
	return ordered
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
