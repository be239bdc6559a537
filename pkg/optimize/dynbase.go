package optimize

import (
	"sort"

	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/stats"
)

// FilterFunctions applies the dynamic baseline predicates, in fixed order
// (call limit, constant, wrapper), to every function with prior-run
// statistics. A function is filtered the first time any predicate holds.
// Functions flagged as changed since the previous version, or no longer
// present in the call graph, are skipped: their past behaviour is not
// predictive.
func FilterFunctions(g *callgraph.Graph, statsMap map[string]stats.FuncStats, params *Params) {
	names := make([]string, 0, len(statsMap))
	for name := range statsMap {
		names = append(names, name)
	}
	sort.Strings(names)

	trim := make([]string, 0)
	for _, name := range names {
		node := g.Node(name)
		if node == nil || node.Diff {
			continue
		}
		fs := statsMap[name]
		if CallLimit(fs, params.HardThreshold) ||
			Constant(fs, params.SoftThreshold, params.ConstantRatio, params.MedianResolution) ||
			Wrapper(g, statsMap, name, params.WrapperRatio) {
			trim = append(trim, name)
		}
	}
	g.RemoveOrFilter(trim, true)
}

// CallLimit holds when the reconstructed call count exceeds the hard
// threshold.
func CallLimit(fs stats.FuncStats, hardThreshold int) bool {
	return fs.Count > hardThreshold
}

// Constant holds when the function is called beyond the soft threshold and
// its durations are either tightly clustered or too small to resolve.
func Constant(fs stats.FuncStats, softThreshold int, constantRatio, medianResolution float64) bool {
	return fs.Count > softThreshold &&
		(fs.IQR < fs.Median*constantRatio || fs.Median <= medianResolution)
}

// Wrapper holds when every caller of the function forwards to it exclusively:
// each caller has this function as its only callee, an equal call count, and
// a median duration mostly spent in the wrapped call. A function with no
// callers is never a wrapper.
func Wrapper(g *callgraph.Graph, statsMap map[string]stats.FuncStats, name string, ratio float64) bool {
	node := g.Node(name)
	if node == nil || len(node.Callers) == 0 {
		return false
	}

	fs := statsMap[name]
	for _, caller := range node.Callers {
		callerStats, ok := statsMap[caller]
		if !ok {
			return false
		}
		parent := g.Node(caller)
		if parent == nil || len(parent.Callees) != 1 || parent.Callees[0] != name {
			return false
		}
		if callerStats.Count != fs.Count || fs.Median < callerStats.Median*ratio {
			return false
		}
	}
	return true
}
