// Package report derives diagnostic summaries from the call graph and the
// dynamic statistics after a run. The report never influences the pruning
// decision.
package report

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/stats"
)

// Report summarizes one optimization invocation: the surviving and filtered
// function sets and the call-count assumption checks. Along every non-cyclic
// call edge a callee is assumed to be called at least as often as its caller;
// edges contradicting that hint at sampling artifacts or missed calls.
type Report struct {
	Binary                  string   `json:"binary"`
	FuncsInstrumented       []string `json:"funcs_instrumented"`
	FuncsFiltered           []string `json:"funcs_filtered"`
	CovByFunc               float64  `json:"cov_by_func"`
	CallAssumptionsOK       int      `json:"call_assumptions_ok"`
	CallAssumptionsViolated int      `json:"call_assumptions_violated"`
	CallAssumptionRatio     float64  `json:"call_assumption_ratio"`
}

type ReportOption func(*Report)

func NewReport(opts ...ReportOption) *Report {
	report := new(Report)
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportBinary(binary string) ReportOption {
	return func(r *Report) {
		r.Binary = binary
	}
}

// WithReportGraph fills the surviving/filtered breakdown from the current
// state of the call graph.
func WithReportGraph(g *callgraph.Graph) ReportOption {
	return func(r *Report) {
		instrumented := make([]string, 0)
		for name := range g.Functions(false) {
			instrumented = append(instrumented, name)
		}
		sort.Strings(instrumented)

		r.FuncsInstrumented = instrumented
		r.FuncsFiltered = g.FilteredFuncs()
		r.CovByFunc = stats.SafeDiv(float64(len(instrumented)), float64(g.Len()), 0)
	}
}

// WithReportCallAssumptions checks the call-count assumption along every
// non-back-edge call edge for which both ends carry statistics.
func WithReportCallAssumptions(g *callgraph.Graph, statsMap map[string]stats.FuncStats) ReportOption {
	return func(r *Report) {
		for caller := range g.Functions(false) {
			node := g.Node(caller)
			callerStats, ok := statsMap[caller]
			if !ok {
				continue
			}
			for _, callee := range node.Callees {
				if g.Backedge(caller, callee) {
					continue
				}
				calleeStats, ok := statsMap[callee]
				if !ok {
					continue
				}
				if calleeStats.Count >= callerStats.Count {
					r.CallAssumptionsOK++
				} else {
					r.CallAssumptionsViolated++
				}
			}
		}
		total := r.CallAssumptionsOK + r.CallAssumptionsViolated
		r.CallAssumptionRatio = stats.SafeDiv(float64(r.CallAssumptionsOK), float64(total), 1)
	}
}

func (r *Report) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
