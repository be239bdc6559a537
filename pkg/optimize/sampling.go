package optimize

import (
	"math"

	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/stats"
)

const (
	// Accepted deviation around the sampling threshold.
	thresholdEpsRatio = 0.1
	// Initial-phase ratios for functions classified by the bounds analyzer.
	samplingConstantRatio = 2
	samplingLinearRatio   = 1.5
)

// SetSampling assigns a per-function sampling rate so that every instrumented
// function yields roughly SamplingThreshold records. Without prior statistics
// the rate defaults to step^level, scaled up for functions known to be
// constant or linear. With statistics the previous rate is corrected towards
// the threshold unless the observed record count already lies within the
// tolerance band. The root function never receives a rate; a zero threshold
// degenerates to filtering everything but the root.
func SetSampling(g *callgraph.Graph, statsMap map[string]stats.FuncStats, params *Params) {
	threshold := params.SamplingThreshold
	if threshold == 0 {
		g.RemoveOrFilter(names(g), true)
		return
	}
	eps := float64(threshold) * thresholdEpsRatio

	for depth, level := range g.Levels() {
		for _, name := range level {
			if name == callgraph.RootFunc {
				continue
			}
			node := g.Node(name)

			sample := int(math.Round(math.Pow(params.SamplingStep, float64(depth))))
			if fs, ok := statsMap[name]; ok {
				calls := float64(fs.SampledCount)
				sample = fs.SampleRate
				if calls < float64(threshold)-eps || calls > float64(threshold)+eps {
					sample = int(math.Floor(float64(sample) * calls / float64(threshold)))
					if sample < 1 {
						sample = 1
					}
				}
			} else {
				switch node.Complexity {
				case callgraph.ComplexityConstant:
					sample *= samplingConstantRatio
				case callgraph.ComplexityLinear:
					sample = int(float64(sample) * samplingLinearRatio)
				}
			}

			if sample > params.SampleMax {
				sample = params.SampleMax
			}
			node.Sample = sample
		}
	}
}
