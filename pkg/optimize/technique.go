// Package optimize implements the optimization techniques that shrink the
// instrumentation set of a profiled program, and the orchestrator that
// sequences them around a trace run.
package optimize

import (
	"github.com/pkg/errors"
)

// Technique identifies one optimization method. The set is closed: pipelines
// are built from these variants rather than from free-form names.
type Technique int

const (
	DiffTracing Technique = iota
	GraphShaping
	BaselineStatic
	BaselineDynamic
	DynamicSampling
	DynamicProbing
	TimedSampling
)

var techniqueNames = map[Technique]string{
	DiffTracing:     "diff-tracing",
	GraphShaping:    "cg-shaping",
	BaselineStatic:  "baseline-static",
	BaselineDynamic: "baseline-dynamic",
	DynamicSampling: "dynamic-sampling",
	DynamicProbing:  "dynamic-probing",
	TimedSampling:   "timed-sampling",
}

func (t Technique) String() string {
	return techniqueNames[t]
}

func ParseTechnique(s string) (Technique, error) {
	for technique, name := range techniqueNames {
		if name == s {
			return technique, nil
		}
	}
	return 0, errors.Errorf("unsupported optimization technique: %q", s)
}

// Techniques returns all known techniques.
func Techniques() []Technique {
	return []Technique{
		DiffTracing, GraphShaping, BaselineStatic, BaselineDynamic,
		DynamicSampling, DynamicProbing, TimedSampling,
	}
}

// PreRun reports whether the technique mutates the call graph before the run.
func (t Technique) PreRun() bool {
	switch t {
	case DiffTracing, GraphShaping, BaselineStatic, BaselineDynamic, DynamicSampling:
		return true
	}
	return false
}

// RunTime reports whether the technique is executed by the external
// instrumentation engine; its parameters are only forwarded.
func (t Technique) RunTime() bool {
	return t == DynamicProbing || t == TimedSampling
}

// UpdatesStats reports whether the technique depends on fresh dynamic
// statistics and therefore requires the post-run update phase.
func (t Technique) UpdatesStats() bool {
	switch t {
	case BaselineDynamic, DynamicSampling, DynamicProbing:
		return true
	}
	return false
}

// Preset is a named, pre-configured selection of techniques.
type Preset int

const (
	// PresetCustom is the default, empty preset: only explicitly enabled
	// techniques run.
	PresetCustom Preset = iota
	PresetBasic
	PresetAdvanced
	PresetFull
)

var presetNames = map[Preset]string{
	PresetCustom:   "custom",
	PresetBasic:    "basic",
	PresetAdvanced: "advanced",
	PresetFull:     "full",
}

func (p Preset) String() string {
	return presetNames[p]
}

func ParsePreset(s string) (Preset, error) {
	for preset, name := range presetNames {
		if name == s {
			return preset, nil
		}
	}
	return PresetCustom, errors.Errorf("unsupported pipeline preset: %q", s)
}

// Techniques maps the preset to its technique selection.
func (p Preset) Techniques() []Technique {
	switch p {
	case PresetBasic:
		return []Technique{GraphShaping, BaselineDynamic}
	case PresetAdvanced:
		return []Technique{DiffTracing, GraphShaping, BaselineDynamic, DynamicSampling}
	case PresetFull:
		return []Technique{
			DiffTracing, GraphShaping, BaselineStatic, BaselineDynamic,
			DynamicSampling, DynamicProbing,
		}
	}
	return nil
}
