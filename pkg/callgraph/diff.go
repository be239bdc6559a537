package callgraph

// DiffAgainst compares the graph with the one extracted for a previous program
// version and flags every function that is new or whose edge set changed.
// Functions that were merely renamed (identical caller and callee sets after
// applying the rename) are not flagged. Functions absent from the current
// graph are ignored. Unless keepLeaf is set, changed leaf functions are not
// flagged, since instrumenting them often inflicts noticeable overhead.
func (g *Graph) DiffAgainst(old *Graph, keepLeaf bool) {
	if old == nil {
		return
	}

	added := make([]string, 0)
	for name := range g.nodes {
		if _, ok := old.nodes[name]; !ok {
			added = append(added, name)
		}
	}
	deleted := make([]string, 0)
	for name := range old.nodes {
		if _, ok := g.nodes[name]; !ok {
			deleted = append(deleted, name)
		}
	}

	renamed := g.findRenames(old, added, deleted)

	changed := make([]string, 0, len(added))
	for _, name := range added {
		if _, ok := renamed[name]; !ok {
			changed = append(changed, name)
		}
	}

	// Functions present in both versions changed when their callee sets differ
	// once renames are mapped back to the old names.
	for name, node := range g.nodes {
		if _, isNew := renamed[name]; isNew {
			continue
		}
		oldNode, ok := old.nodes[name]
		if !ok {
			continue
		}
		if !sameSet(applyRenames(node.Callees, renamed), oldNode.Callees) {
			changed = append(changed, name)
		}
	}

	if !keepLeaf {
		kept := changed[:0]
		for _, name := range changed {
			if !g.nodes[name].Leaf {
				kept = append(kept, name)
			}
		}
		changed = kept
	}

	g.SetDiff(changed)
	g.logger.Debug().
		Int("added", len(added)).
		Int("deleted", len(deleted)).
		Int("renamed", len(renamed)).
		Int("changed", len(changed)).
		Msg("call graph diff computed")
}

// findRenames pairs new functions with deleted functions that have identical
// caller and callee sets, which indicates a rename rather than a change.
// The mapping is 1:1, resolved in descending level order.
func (g *Graph) findRenames(old *Graph, added, deleted []string) map[string]string {
	renamed := make(map[string]string)
	if len(added) == 0 || len(deleted) == 0 {
		return renamed
	}

	candidates := old.SortByLevel(deleted, true)
	for _, newName := range g.SortByLevel(added, true) {
		node := g.nodes[newName]
		callers := applyRenames(node.Callers, renamed)
		callees := applyRenames(node.Callees, renamed)
		for idx, delName := range candidates {
			delNode := old.nodes[delName]
			if sameSet(callers, delNode.Callers) && sameSet(callees, delNode.Callees) {
				renamed[newName] = delName
				candidates = append(candidates[:idx], candidates[idx+1:]...)
				break
			}
		}
	}
	return renamed
}

func applyRenames(names []string, renames map[string]string) []string {
	if len(renames) == 0 {
		return names
	}
	mapped := make([]string, 0, len(names))
	for _, name := range names {
		if oldName, ok := renames[name]; ok {
			name = oldName
		}
		mapped = append(mapped, name)
	}
	return mapped
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, name := range a {
		set[name] = struct{}{}
	}
	for _, name := range b {
		if _, ok := set[name]; !ok {
			return false
		}
	}
	return true
}
