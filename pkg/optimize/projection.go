package optimize

import (
	"math"

	"github.com/tracekit/probeopt/pkg/callgraph"
)

// TopDown keeps the top chainLength levels of the call graph and filters
// everything below the cut. Leaf functions are exempted from the cut when
// keepLeaf is set, since terminal calls are cheap to keep. The root function
// always survives.
func TopDown(g *callgraph.Graph, chainLength int, keepLeaf bool) {
	trim := make([]string, 0)
	for depth, level := range g.Levels() {
		if depth < chainLength {
			continue
		}
		for _, name := range level {
			if keepLeaf && g.Node(name).Leaf {
				continue
			}
			trim = append(trim, name)
		}
	}
	g.RemoveOrFilter(trim, true)
}

// BottomUp keeps the call chains that reach a bottom function in at most
// chainLength steps, restricted to a level window around each bottom function.
// It returns the maximum number of expansion steps that was actually needed,
// for diagnostics. chainLength 0 degenerates to filtering everything but the
// root function.
func BottomUp(g *callgraph.Graph, chainLength int) int {
	if chainLength == 0 {
		g.RemoveOrFilter(names(g), true)
		return 0
	}

	maxSteps := 0
	visited := make(map[string]struct{})
	for bot := range g.Bottom() {
		node := g.Node(bot)
		levelMax := int(math.Round(float64(node.Level) + float64(chainLength)/2))
		levelMin := int(math.Round(float64(node.Level) - float64(chainLength)/2))

		visited[bot] = struct{}{}
		inspect := map[string]struct{}{bot: {}}
		reached := map[string]struct{}{bot: {}}
		for step := 0; step < chainLength-1; step++ {
			frontier := make(map[string]struct{})
			for name := range inspect {
				for _, caller := range g.Node(name).Callers {
					if _, ok := reached[caller]; ok {
						continue
					}
					if level := g.Node(caller).Level; level < levelMin || level > levelMax {
						continue
					}
					frontier[caller] = struct{}{}
				}
			}
			if len(frontier) == 0 {
				if step > maxSteps {
					maxSteps = step
				}
				break
			}
			for name := range frontier {
				reached[name] = struct{}{}
				visited[name] = struct{}{}
			}
			inspect = frontier
		}
	}

	trim := make([]string, 0)
	for _, name := range names(g) {
		if _, ok := visited[name]; !ok {
			trim = append(trim, name)
		}
	}
	g.RemoveOrFilter(trim, true)

	return maxSteps
}

func names(g *callgraph.Graph) []string {
	funcs := g.Functions(false)
	out := make([]string, 0, len(funcs))
	for name := range funcs {
		out = append(out, name)
	}
	return out
}
