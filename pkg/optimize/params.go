package optimize

import (
	"math"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/tracekit/probeopt/pkg/callgraph"
)

const (
	// Keep leaf functions when the total number of profiled functions is low.
	keepLeafFuncLimit = 20
	// Protected top levels: 10% of the level count, at least one level.
	keepTopRatio   = 0.1
	defaultKeepTop = 1
	// Projection chain length: top 50% of the levels, at least two.
	chainLevelsRatio  = 0.5
	defaultMinLevels  = 2
	defaultChain      = 1
	defaultStep       = 2
	softThresholdBase = 10000
	// The basic preset trades coverage for overhead with a stricter threshold.
	strictThresholdBase = 1000
	hardThresholdCoeff  = 100
	// Dynamic probing threshold, scaled down when re-attachment is requested.
	defaultProbingThreshold = 100000
	probingReattachCoeff    = 0.2
	// Upper bound imposed by the integer width of the collection programs.
	defaultSampleMax = 2000000000
)

// Params carries the numeric thresholds and switches of every technique.
// A zero value is not usable; start from DefaultParams or LoadParams.
type Params struct {
	DiffKeepLeaf bool `toml:"diff_keep_leaf"`

	BottomUpShaping bool `toml:"bottom_up"`
	ChainLength     int  `toml:"chain_length"`
	ProjKeepLeaf    bool `toml:"projection_keep_leaf"`

	StaticComplexity callgraph.Complexity `toml:"static_complexity"`
	StaticKeepTop    int                  `toml:"static_keep_top"`

	SoftThreshold    int     `toml:"soft_threshold"`
	HardThreshold    int     `toml:"hard_threshold"`
	StrictThresholds bool    `toml:"strict_thresholds"`
	ConstantRatio    float64 `toml:"constant_ratio"`
	MedianResolution float64 `toml:"median_resolution"`
	WrapperRatio     float64 `toml:"wrapper_ratio"`

	SamplingStep      float64 `toml:"sampling_step"`
	SamplingThreshold int     `toml:"sampling_threshold"`
	SampleMax         int     `toml:"sample_max"`

	ProbingThreshold int  `toml:"probing_threshold"`
	ProbingReattach  bool `toml:"probing_reattach"`
	TimedSamplingHz  int  `toml:"timed_sampling_hz"`
}

func DefaultParams() *Params {
	return &Params{
		ChainLength:       defaultChain,
		StaticComplexity:  callgraph.ComplexityConstant,
		StaticKeepTop:     defaultKeepTop,
		SoftThreshold:     softThresholdBase,
		HardThreshold:     softThresholdBase * hardThresholdCoeff,
		ConstantRatio:     0.05,
		MedianResolution:  10,
		WrapperRatio:      0.8,
		SamplingStep:      defaultStep,
		SamplingThreshold: softThresholdBase,
		SampleMax:         defaultSampleMax,
		ProbingThreshold:  defaultProbingThreshold,
		TimedSamplingHz:   1,
	}
}

// LoadParams reads a TOML parameter file over the defaults. Only the keys
// present in the file override the default values.
func LoadParams(path string) (*Params, error) {
	params := DefaultParams()
	if _, err := toml.DecodeFile(path, params); err != nil {
		return nil, errors.Wrapf(err, "decoding parameter file %s", path)
	}
	return params, nil
}

// Infer predicts sensible values for the parameters that depend on the shape
// of the call graph and on the selected preset. Values the user already set
// through a parameter file should be re-applied by the caller afterwards.
func (p *Params) Infer(g *callgraph.Graph, preset Preset) {
	base := softThresholdBase
	if preset == PresetBasic || p.StrictThresholds {
		base = strictThresholdBase
	}
	p.SoftThreshold = base
	p.HardThreshold = base * hardThresholdCoeff
	p.SamplingThreshold = base

	if p.ProbingReattach {
		p.ProbingThreshold = int(float64(defaultProbingThreshold) * probingReattachCoeff)
	}

	if g == nil || g.Len() == 0 {
		return
	}

	if g.Len() <= keepLeafFuncLimit {
		p.DiffKeepLeaf = true
		p.ProjKeepLeaf = true
	}

	levels := g.Depth()
	keepTop := int(math.Ceil(float64(levels) * keepTopRatio))
	if keepTop < defaultKeepTop {
		keepTop = defaultKeepTop
	}
	p.StaticKeepTop = keepTop

	chain := int(math.Round(float64(levels) * chainLevelsRatio))
	if chain < defaultMinLevels {
		chain = defaultMinLevels
	}
	p.ChainLength = chain
}
