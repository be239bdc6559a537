package optimize

import (
	"github.com/tracekit/probeopt/pkg/callgraph"
)

// Bounds holds the complexity classes an external bounds analyzer inferred for
// one function. Total bounds are preferred over local bounds; a function with
// neither resolves to the generic class and is never filtered.
type Bounds struct {
	Total []callgraph.Complexity `json:"total"`
	Local []callgraph.Complexity `json:"local"`
}

// Resolve selects the effective complexity class of the function.
func (b Bounds) Resolve() callgraph.Complexity {
	if len(b.Total) > 0 {
		return callgraph.MaxComplexity(b.Total...)
	}
	if len(b.Local) > 0 {
		return callgraph.MaxComplexity(b.Local...)
	}
	return callgraph.ComplexityGeneric
}

// ComplexityFilter assigns the resolved complexity class to every function
// below the keepTop protected levels and filters those at or below the
// threshold. The protected levels keep their functions regardless of
// complexity so the trace stays connected from the root downward.
func ComplexityFilter(g *callgraph.Graph, bounds map[string]Bounds, threshold callgraph.Complexity, keepTop int) {
	levels := g.Levels()
	if keepTop < 0 {
		keepTop = 0
	}

	trim := make([]string, 0)
	for depth := len(levels) - 1; depth >= keepTop; depth-- {
		for _, name := range levels[depth] {
			complexity := callgraph.ComplexityGeneric
			if b, ok := bounds[name]; ok {
				complexity = b.Resolve()
			}
			g.Node(name).Complexity = complexity
			if complexity <= threshold {
				trim = append(trim, name)
			}
		}
	}
	g.RemoveOrFilter(trim, true)
}
