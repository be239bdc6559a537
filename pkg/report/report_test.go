package report_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/report"
	"github.com/tracekit/probeopt/pkg/stats"
)

func chainGraph(t *testing.T) *callgraph.Graph {
	t.Helper()
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main": {"a"},
		"a":    {"b"},
		"b":    {},
	})
	require.NoError(t, err)
	return g
}

func TestReportGraphBreakdown(t *testing.T) {
	g := chainGraph(t)
	g.RemoveOrFilter([]string{"b"}, true)

	r := report.NewReport(
		report.WithReportBinary("/usr/bin/app"),
		report.WithReportGraph(g),
	)

	require.Equal(t, []string{"a", "main"}, r.FuncsInstrumented)
	require.Equal(t, []string{"b"}, r.FuncsFiltered)
	require.InDelta(t, 2.0/3.0, r.CovByFunc, 1e-9)
}

func TestReportCallAssumptions(t *testing.T) {
	g := chainGraph(t)
	statsMap := map[string]stats.FuncStats{
		"main": {Count: 1},
		"a":    {Count: 10},
		"b":    {Count: 5},
	}

	r := report.NewReport(report.WithReportCallAssumptions(g, statsMap))

	// main -> a holds (10 >= 1), a -> b is violated (5 < 10).
	require.Equal(t, 1, r.CallAssumptionsOK)
	require.Equal(t, 1, r.CallAssumptionsViolated)
	require.InDelta(t, 0.5, r.CallAssumptionRatio, 1e-9)
}

func TestReportCallAssumptionsSkipsBackedges(t *testing.T) {
	g := callgraph.NewGraph()
	require.NoError(t, g.Build(map[string][]string{
		"main": {"a"},
		"a":    {"b"},
		"b":    {"a"},
	}))
	statsMap := map[string]stats.FuncStats{
		"a": {Count: 10},
		"b": {Count: 5},
	}

	r := report.NewReport(report.WithReportCallAssumptions(g, statsMap))

	// a -> b counts, the b -> a back-edge does not.
	require.Equal(t, 1, r.CallAssumptionsViolated)
	require.Equal(t, 0, r.CallAssumptionsOK)
}

func TestReportNoStats(t *testing.T) {
	r := report.NewReport(report.WithReportCallAssumptions(chainGraph(t), nil))

	require.Zero(t, r.CallAssumptionsOK)
	require.Zero(t, r.CallAssumptionsViolated)
	require.Equal(t, 1.0, r.CallAssumptionRatio)
}

func TestWriteReport(t *testing.T) {
	g := chainGraph(t)
	r := report.NewReport(
		report.WithReportBinary("/usr/bin/app"),
		report.WithReportGraph(g),
	)

	var buf bytes.Buffer
	require.NoError(t, r.WriteReport(&buf))

	var decoded report.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "/usr/bin/app", decoded.Binary)
	require.Equal(t, r.FuncsInstrumented, decoded.FuncsInstrumented)
}
