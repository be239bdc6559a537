package stats_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracekit/probeopt/pkg/stats"
)

func TestBuildHierarchyDepthAndBottom(t *testing.T) {
	d := stats.NewDynamicStats()
	// 1 spawns 2; 2 spawns 3 and 4.
	spawns := map[int][]stats.SpawnRecord{
		2: {{ParentPID: 1, Duration: 100}},
		3: {{ParentPID: 2, Duration: 40}},
		4: {{ParentPID: 2, Duration: 50}},
	}
	threads := map[int]stats.Thread{
		10: {PID: 1, Duration: 100},
		30: {PID: 3, Duration: 40},
	}
	d.BuildHierarchy(spawns, threads)

	require.Equal(t, 0, d.Hierarchy[1].Depth)
	require.Equal(t, 1, d.Hierarchy[2].Depth)
	require.Equal(t, 2, d.Hierarchy[3].Depth)
	require.Equal(t, 2, d.Hierarchy[4].Depth)

	for pid, proc := range d.Hierarchy {
		if len(proc.Children) == 0 {
			require.True(t, proc.Bottom, "pid %d", pid)
		} else {
			require.False(t, proc.Bottom, "pid %d", pid)
		}
		for _, child := range proc.Children {
			require.Equal(t, proc.Depth+1, d.Hierarchy[child].Depth)
		}
	}

	require.ElementsMatch(t, []int{10}, d.Hierarchy[1].Threads)
	require.ElementsMatch(t, []int{30}, d.Hierarchy[3].Threads)
}

func TestBuildHierarchyExecSelfEdge(t *testing.T) {
	d := stats.NewDynamicStats()
	// Process 5 execs itself: it must not be classified as bottom.
	spawns := map[int][]stats.SpawnRecord{
		5: {{ParentPID: 5, Duration: 10}},
	}
	d.BuildHierarchy(spawns, nil)

	require.False(t, d.Hierarchy[5].Bottom)
	require.ElementsMatch(t, []int{5}, d.Hierarchy[5].Children)
	require.ElementsMatch(t, []int{5}, d.Hierarchy[5].Parents)
}

func TestBuildHierarchyDeduplicates(t *testing.T) {
	d := stats.NewDynamicStats()
	spawns := map[int][]stats.SpawnRecord{
		2: {
			{ParentPID: 1, Duration: 10},
			{ParentPID: 1, Duration: 20},
		},
	}
	d.BuildHierarchy(spawns, nil)

	require.Equal(t, []int{2}, d.Hierarchy[1].Children)
	require.Equal(t, []int{1}, d.Hierarchy[2].Parents)
}

func TestFromRunGlobalBottomOnly(t *testing.T) {
	// 1 spawns 2; thread 10 belongs to the non-bottom 1, thread 20 to the
	// bottom process 2. Only thread 20 contributes to the global stats.
	spawns := map[int][]stats.SpawnRecord{
		2: {{ParentPID: 1, Duration: 100}},
	}
	threads := map[int]stats.Thread{
		10: {PID: 1, Duration: 100},
		20: {PID: 2, Duration: 90},
	}
	samples := stats.RawSamples{
		10: {"work": {Inclusive: []float64{1000}, Exclusive: []float64{1000}}},
		20: {"work": {Inclusive: []float64{1, 2, 3, 4}, Exclusive: []float64{1, 2, 3, 4}}},
	}

	d := stats.FromRun(samples, spawns, threads, nil)

	global, ok := d.GlobalStats["work"]
	require.True(t, ok)
	require.Equal(t, 4, global.SampledCount)
	require.Equal(t, 10.0, global.Total)

	// Per-thread stats have no bottom restriction.
	require.Contains(t, d.PerThread, 10)
	require.Equal(t, 1, d.PerThread[10]["work"].SampledCount)
}

func TestSummaryQuartiles(t *testing.T) {
	samples := stats.RawSamples{
		20: {"f": {Inclusive: []float64{4, 1, 3, 2}, Exclusive: []float64{1, 1, 1, 1}}},
	}
	threads := map[int]stats.Thread{20: {PID: 2, Duration: 10}}

	d := stats.FromRun(samples, nil, threads, nil)
	fs := d.GlobalStats["f"]

	// Linear interpolation over [1 2 3 4].
	require.InDelta(t, 1.75, fs.Q1, 1e-9)
	require.InDelta(t, 2.5, fs.Median, 1e-9)
	require.InDelta(t, 3.25, fs.Q3, 1e-9)
	require.InDelta(t, fs.Q3-fs.Q1, fs.IQR, 1e-9)

	require.True(t, fs.IQR >= 0)
	require.True(t, fs.Min <= fs.Q1)
	require.True(t, fs.Q1 <= fs.Median)
	require.True(t, fs.Median <= fs.Q3)
	require.True(t, fs.Q3 <= fs.Max)
}

func TestSummarySingleSample(t *testing.T) {
	samples := stats.RawSamples{
		20: {"f": {Inclusive: []float64{7}, Exclusive: []float64{7}}},
	}
	threads := map[int]stats.Thread{20: {PID: 2, Duration: 10}}

	d := stats.FromRun(samples, nil, threads, map[string]int{"f": 100})
	fs := d.GlobalStats["f"]

	require.Equal(t, 7.0, fs.Median)
	require.Equal(t, 0.0, fs.IQR)
	// A single sample reconstructs to a single call regardless of rate.
	require.Equal(t, 1, fs.Count)
}

func TestCountReconstruction(t *testing.T) {
	inclusive := []float64{1, 2, 3, 4, 5}
	threads := map[int]stats.Thread{20: {PID: 2, Duration: 10}}

	counts := make([]int, 0)
	for _, rate := range []int{1, 2, 10} {
		samples := stats.RawSamples{
			20: {"f": {Inclusive: inclusive, Exclusive: inclusive}},
		}
		d := stats.FromRun(samples, nil, threads, map[string]int{"f": rate})
		counts = append(counts, d.GlobalStats["f"].Count)
	}

	// count = sampled + (sampled-1)*(rate-1); sparser sampling never
	// decreases the reconstructed count.
	require.Equal(t, []int{5, 9, 41}, counts)
	require.True(t, sortedAscending(counts))
}

func TestDegenerateInput(t *testing.T) {
	threads := map[int]stats.Thread{20: {PID: 2, Duration: 10}}
	samples := stats.RawSamples{
		20: {"empty": {}},
	}

	d := stats.FromRun(samples, nil, threads, nil)
	require.NotContains(t, d.GlobalStats, "empty")
	require.NotContains(t, d.PerThread[20], "empty")
}

func TestSafeDiv(t *testing.T) {
	require.Equal(t, 2.0, stats.SafeDiv(4, 2, 0))
	require.Equal(t, 0.0, stats.SafeDiv(4, 0, 0))
	require.Equal(t, -1.0, stats.SafeDiv(4, 0, -1))
}

func sortedAscending(values []int) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}
