package optimize_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/optimize"
)

func TestParseTechnique(t *testing.T) {
	for _, technique := range optimize.Techniques() {
		parsed, err := optimize.ParseTechnique(technique.String())
		require.NoError(t, err)
		require.Equal(t, technique, parsed)
	}

	_, err := optimize.ParseTechnique("turbo-mode")
	require.Error(t, err)
}

func TestTechniquePhases(t *testing.T) {
	require.True(t, optimize.GraphShaping.PreRun())
	require.False(t, optimize.GraphShaping.RunTime())

	require.True(t, optimize.DynamicProbing.RunTime())
	require.True(t, optimize.TimedSampling.RunTime())
	require.False(t, optimize.TimedSampling.PreRun())

	require.True(t, optimize.BaselineDynamic.UpdatesStats())
	require.True(t, optimize.DynamicSampling.UpdatesStats())
	require.False(t, optimize.BaselineStatic.UpdatesStats())
}

func TestParsePreset(t *testing.T) {
	preset, err := optimize.ParsePreset("advanced")
	require.NoError(t, err)
	require.Equal(t, optimize.PresetAdvanced, preset)

	_, err = optimize.ParsePreset("ultimate")
	require.Error(t, err)

	require.Empty(t, optimize.PresetCustom.Techniques())
	require.ElementsMatch(t,
		[]optimize.Technique{optimize.GraphShaping, optimize.BaselineDynamic},
		optimize.PresetBasic.Techniques())
	require.Len(t, optimize.PresetFull.Techniques(), 6)
}

func TestDefaultParams(t *testing.T) {
	params := optimize.DefaultParams()

	require.Equal(t, 10000, params.SoftThreshold)
	require.Equal(t, 1000000, params.HardThreshold)
	require.Equal(t, callgraph.ComplexityConstant, params.StaticComplexity)
	require.Equal(t, 2.0, params.SamplingStep)
	require.Equal(t, 2000000000, params.SampleMax)
}

func TestInferParams(t *testing.T) {
	g := diamond(t)
	params := optimize.DefaultParams()
	params.Infer(g, optimize.PresetCustom)

	// Four functions: small enough to keep the leaves.
	require.True(t, params.DiffKeepLeaf)
	require.True(t, params.ProjKeepLeaf)
	// Three levels: ceil(3 * 0.1) = 1 protected level, chain max(round(1.5), 2).
	require.Equal(t, 1, params.StaticKeepTop)
	require.Equal(t, 2, params.ChainLength)
	require.Equal(t, 10000, params.SoftThreshold)
}

func TestInferParamsStrict(t *testing.T) {
	params := optimize.DefaultParams()
	params.Infer(diamond(t), optimize.PresetBasic)

	require.Equal(t, 1000, params.SoftThreshold)
	require.Equal(t, 100000, params.HardThreshold)
	require.Equal(t, 1000, params.SamplingThreshold)
}

func TestInferParamsProbingReattach(t *testing.T) {
	params := optimize.DefaultParams()
	params.ProbingReattach = true
	params.Infer(nil, optimize.PresetCustom)

	require.Equal(t, 20000, params.ProbingThreshold)
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.toml")
	content := `
soft_threshold = 500
static_complexity = "linear"
projection_keep_leaf = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	params, err := optimize.LoadParams(path)
	require.NoError(t, err)

	require.Equal(t, 500, params.SoftThreshold)
	require.Equal(t, callgraph.ComplexityLinear, params.StaticComplexity)
	require.True(t, params.ProjKeepLeaf)
	// Keys absent from the file keep their defaults.
	require.Equal(t, 2.0, params.SamplingStep)
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := optimize.LoadParams(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
