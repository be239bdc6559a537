package callgraph_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracekit/probeopt/pkg/callgraph"
)

// diamond is the graph main -> {a, b}, a -> c, b -> c, c leaf.
func diamond(t *testing.T) *callgraph.Graph {
	t.Helper()
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main": {"a", "b"},
		"a":    {"c"},
		"b":    {"c"},
		"c":    {},
	})
	require.NoError(t, err)
	return g
}

func TestBuildLevels(t *testing.T) {
	g := diamond(t)

	require.Equal(t, 3, g.Depth())
	require.Equal(t, []string{"main"}, g.Levels()[0])
	require.ElementsMatch(t, []string{"a", "b"}, g.Levels()[1])
	require.Equal(t, []string{"c"}, g.Levels()[2])

	require.Equal(t, 0, g.Node("main").Level)
	require.Equal(t, 1, g.Node("a").Level)
	require.Equal(t, 2, g.Node("c").Level)
	require.True(t, g.Node("c").Leaf)
	require.False(t, g.Node("a").Leaf)
}

func TestBuildMissingRoot(t *testing.T) {
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{"a": {"b"}})
	require.Error(t, err)
	require.ErrorIs(t, err, callgraph.ErrMissingRoot)

	err = callgraph.NewGraph().Build(nil)
	require.ErrorIs(t, err, callgraph.ErrEmptyGraph)
}

func TestBuildRecursion(t *testing.T) {
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main": {"a"},
		"a":    {"b", "a"},
		"b":    {"a"},
	})
	require.NoError(t, err)

	// Direct recursion of a plus the mutual a <-> b cycle.
	require.True(t, g.Recursive("a"))
	require.True(t, g.Backedge("b", "a"))
	require.False(t, g.Backedge("main", "a"))

	// The back-edge must not break level assignment.
	require.Equal(t, 1, g.Node("a").Level)
	require.Equal(t, 2, g.Node("b").Level)
}

func TestBuildUnreachable(t *testing.T) {
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main":   {"a"},
		"a":      {},
		"orphan": {"a"},
	})
	require.NoError(t, err)

	require.NotNil(t, g.Node("orphan"))
	require.Equal(t, callgraph.UnreachableLevel, g.Node("orphan").Level)

	// The unreachable caller must not block level resolution of a.
	require.Equal(t, 1, g.Node("a").Level)
	require.Equal(t, 2, g.Depth())
	require.Equal(t, []string{"a"}, g.Levels()[1])
}

func TestBuildUnreachableCallerMidGraph(t *testing.T) {
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main":   {"a"},
		"a":      {"b"},
		"b":      {},
		"orphan": {"b"},
	})
	require.NoError(t, err)

	// b has both a reachable and an unreachable caller; it still lands in
	// exactly one level.
	require.Equal(t, 1, g.Node("a").Level)
	require.Equal(t, 2, g.Node("b").Level)
	require.Equal(t, callgraph.UnreachableLevel, g.Node("orphan").Level)
	require.Equal(t, 3, g.Depth())
	require.Equal(t, []string{"b"}, g.Levels()[2])
}

func TestRemoveOrFilterSoft(t *testing.T) {
	g := diamond(t)

	g.RemoveOrFilter([]string{"a", "c"}, true)
	require.True(t, g.Node("a").Filtered)
	require.True(t, g.Node("c").Filtered)
	require.NotNil(t, g.Node("a"))

	funcs := g.Functions(false)
	require.ElementsMatch(t, []string{"main", "b"}, keys(funcs))
}

func TestRemoveOrFilterHard(t *testing.T) {
	g := diamond(t)

	g.RemoveOrFilter([]string{"c"}, false)
	require.Nil(t, g.Node("c"))
	require.True(t, g.Node("a").Leaf)
	require.True(t, g.Node("b").Leaf)
	require.Empty(t, g.Node("a").Callees)
}

func TestRemoveOrFilterProtectsRoot(t *testing.T) {
	g := diamond(t)

	g.RemoveOrFilter([]string{"main", "a", "b", "c"}, true)
	require.False(t, g.Node("main").Filtered)
	require.ElementsMatch(t, []string{"main"}, keys(g.Functions(false)))
}

func TestRemoveOrFilterIdempotent(t *testing.T) {
	g := diamond(t)
	g.RemoveOrFilter([]string{"b", "c"}, true)
	once := keys(g.Functions(false))

	g.RemoveOrFilter([]string{"b", "c"}, true)
	require.ElementsMatch(t, once, keys(g.Functions(false)))

	g = diamond(t)
	g.RemoveOrFilter([]string{"c"}, false)
	g.RemoveOrFilter([]string{"c"}, false)
	require.Nil(t, g.Node("c"))
	require.Equal(t, 3, g.Len())
}

func TestRemoveOrFilterSkipsDiff(t *testing.T) {
	g := diamond(t)
	g.SetDiff([]string{"b"})

	g.RemoveOrFilter([]string{"a", "b"}, true)
	require.True(t, g.Node("a").Filtered)
	require.False(t, g.Node("b").Filtered)
}

func TestBottomAndTop(t *testing.T) {
	g := diamond(t)

	require.ElementsMatch(t, []string{"c"}, setKeys(g.Bottom()))
	require.ElementsMatch(t, []string{"main"}, setKeys(g.Top()))

	// Filtering c pushes the bottom up to its callers.
	g.RemoveOrFilter([]string{"c"}, true)
	require.ElementsMatch(t, []string{"a", "b"}, setKeys(g.Bottom()))
}

func TestBottomIgnoresBackedges(t *testing.T) {
	g := callgraph.NewGraph()
	err := g.Build(map[string][]string{
		"main": {"a"},
		"a":    {"b"},
		"b":    {"a"},
	})
	require.NoError(t, err)

	// b's only callee is reached via a back-edge, so b is a bottom function.
	bottom := setKeys(g.Bottom())
	require.Contains(t, bottom, "b")
	require.NotContains(t, bottom, "a")
}

func TestFunctionsDiffOnly(t *testing.T) {
	g := diamond(t)
	g.SetDiff([]string{"b"})

	funcs := g.Functions(true)
	require.ElementsMatch(t, []string{"main", "b"}, keys(funcs))
}

func TestDiffAgainst(t *testing.T) {
	g := diamond(t)

	old := callgraph.NewGraph()
	err := old.Build(map[string][]string{
		"main": {"a"},
		"a":    {"c"},
		"c":    {},
	})
	require.NoError(t, err)

	g.DiffAgainst(old, true)

	// b is new; main gained a callee; a and c are unchanged.
	require.True(t, g.Node("b").Diff)
	require.True(t, g.Node("main").Diff)
	require.False(t, g.Node("a").Diff)
	require.False(t, g.Node("c").Diff)
}

func TestDiffAgainstRename(t *testing.T) {
	g := callgraph.NewGraph()
	require.NoError(t, g.Build(map[string][]string{
		"main":    {"renamed"},
		"renamed": {"leafy"},
		"leafy":   {},
	}))

	old := callgraph.NewGraph()
	require.NoError(t, old.Build(map[string][]string{
		"main":     {"original"},
		"original": {"leafy"},
		"leafy":    {},
	}))

	g.DiffAgainst(old, true)

	// A pure rename must not be flagged, nor its neighbours.
	require.False(t, g.Node("renamed").Diff)
	require.False(t, g.Node("main").Diff)
	require.False(t, g.Node("leafy").Diff)
}

func TestDiffAgainstSkipsLeaves(t *testing.T) {
	g := diamond(t)

	old := callgraph.NewGraph()
	require.NoError(t, old.Build(map[string][]string{
		"main": {"a", "b"},
		"a":    {},
		"b":    {},
	}))

	g.DiffAgainst(old, false)

	// c is new but a leaf, so it is not flagged without keepLeaf.
	require.False(t, g.Node("c").Diff)
	require.True(t, g.Node("a").Diff)
}

func TestArtifactRoundTrip(t *testing.T) {
	g := callgraph.NewGraph(callgraph.WithGraphVersion("v2"))
	require.NoError(t, g.Build(map[string][]string{
		"main": {"a"},
		"a":    {"b", "a"},
		"b":    {"a"},
	}))
	g.Node("a").Complexity = callgraph.ComplexityLinear

	var buf bytes.Buffer
	require.NoError(t, g.ToArtifact().WriteArtifact(&buf))

	artifact, err := callgraph.ReadArtifact(&buf)
	require.NoError(t, err)

	restored, err := callgraph.FromArtifact(artifact)
	require.NoError(t, err)
	require.Equal(t, "v2", restored.Version())
	require.Equal(t, g.Len(), restored.Len())
	require.Equal(t, g.RecursiveFuncs(), restored.RecursiveFuncs())
	require.Equal(t, callgraph.ComplexityLinear, restored.Node("a").Complexity)
	require.ElementsMatch(t, g.Node("a").Callees, restored.Node("a").Callees)
	require.Equal(t, g.Node("b").Level, restored.Node("b").Level)
}

func TestFromArtifactMissingRoot(t *testing.T) {
	artifact := &callgraph.Artifact{
		CallGraph: callgraph.ArtifactGraph{
			CGMap: map[string]*callgraph.Node{
				"a": {Name: "a"},
			},
		},
	}
	_, err := callgraph.FromArtifact(artifact)
	require.ErrorIs(t, err, callgraph.ErrMissingRoot)
}

func TestParseComplexity(t *testing.T) {
	c, err := callgraph.ParseComplexity("quadratic")
	require.NoError(t, err)
	require.Equal(t, callgraph.ComplexityQuadratic, c)

	_, err = callgraph.ParseComplexity("exponential-ish")
	require.Error(t, err)

	require.True(t, callgraph.ComplexityConstant < callgraph.ComplexityLinear)
	require.True(t, callgraph.ComplexityGeneric < callgraph.ComplexityUnknown)
	require.Equal(t, callgraph.ComplexityCubic,
		callgraph.MaxComplexity(callgraph.ComplexityConstant, callgraph.ComplexityCubic))
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
