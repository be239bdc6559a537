package callgraph

// Bottom returns the set of functions with no reachable unfiltered callee
// outside back-edges, i.e. the leaves of the surviving graph. The set is
// cached until the filtered state changes.
func (g *Graph) Bottom() map[string]struct{} {
	if !g.dirty && g.bottom != nil {
		return g.bottom
	}
	g.computeSets()
	return g.bottom
}

// Top returns the set of functions with no unfiltered caller outside
// back-edges. When the computation yields an empty set, the root function
// alone forms the top.
func (g *Graph) Top() map[string]struct{} {
	if !g.dirty && g.top != nil {
		return g.top
	}
	g.computeSets()
	return g.top
}

func (g *Graph) computeSets() {
	g.bottom = make(map[string]struct{})
	g.top = make(map[string]struct{})

	for name, node := range g.nodes {
		if node.Filtered {
			continue
		}
		if g.isBottom(name, node) {
			g.bottom[name] = struct{}{}
		}
		if g.isTop(name, node) {
			g.top[name] = struct{}{}
		}
	}
	if len(g.top) == 0 {
		if _, ok := g.nodes[RootFunc]; ok {
			g.top[RootFunc] = struct{}{}
		}
	}
	g.dirty = false
}

func (g *Graph) isBottom(name string, node *Node) bool {
	for _, callee := range node.Callees {
		target, ok := g.nodes[callee]
		if !ok || target.Filtered {
			continue
		}
		if !g.Backedge(name, callee) {
			return false
		}
	}
	return true
}

func (g *Graph) isTop(name string, node *Node) bool {
	for _, caller := range node.Callers {
		source, ok := g.nodes[caller]
		if !ok || source.Filtered {
			continue
		}
		if !g.Backedge(caller, name) {
			return false
		}
	}
	return true
}
