package stats

import (
	"math"
	"sort"
)

// FromRun computes the full statistics resource for a finished profiling run:
// the process hierarchy, the bottom-process global statistics and the
// per-thread statistics. rates carries the per-function sampling rate that was
// active during the run; functions absent from it default to full sampling.
func FromRun(samples RawSamples, spawns map[int][]SpawnRecord, threads map[int]Thread, rates map[string]int) *DynamicStats {
	d := NewDynamicStats()
	d.BuildHierarchy(spawns, threads)
	d.computeGlobal(samples, rates)
	d.computePerThread(samples, rates)
	return d
}

// computeGlobal merges samples of all threads owned by bottom processes and
// summarizes them per function.
func (d *DynamicStats) computeGlobal(samples RawSamples, rates map[string]int) {
	bottom := d.bottomProcesses()

	merged := make(map[string]*FuncSamples)
	for tid, funcs := range samples {
		thread, ok := d.Threads[tid]
		if !ok {
			continue
		}
		if _, ok := bottom[thread.PID]; !ok {
			continue
		}
		for name, values := range funcs {
			agg, ok := merged[name]
			if !ok {
				agg = &FuncSamples{}
				merged[name] = agg
			}
			agg.Inclusive = append(agg.Inclusive, values.Inclusive...)
			agg.Exclusive = append(agg.Exclusive, values.Exclusive...)
		}
	}

	for name, values := range merged {
		if summary, ok := summarize(*values, rateOf(rates, name)); ok {
			d.GlobalStats[name] = summary
		}
	}
}

func (d *DynamicStats) computePerThread(samples RawSamples, rates map[string]int) {
	for tid, funcs := range samples {
		if _, ok := d.Threads[tid]; !ok {
			continue
		}
		perFunc := make(map[string]FuncStats, len(funcs))
		for name, values := range funcs {
			if summary, ok := summarize(values, rateOf(rates, name)); ok {
				perFunc[name] = summary
			}
		}
		d.PerThread[tid] = perFunc
	}
}

// summarize computes the statistics record of one function. Functions with no
// inclusive samples yield no record.
func summarize(values FuncSamples, rate int) (FuncStats, bool) {
	n := len(values.Inclusive)
	if n == 0 {
		return FuncStats{}, false
	}
	if rate < 1 {
		rate = 1
	}

	inclusive := append([]float64{}, values.Inclusive...)
	sort.Float64s(inclusive)

	var total, totalExclusive float64
	for _, v := range inclusive {
		total += v
	}
	for _, v := range values.Exclusive {
		totalExclusive += v
	}

	q1 := percentile(inclusive, 25)
	median := percentile(inclusive, 50)
	q3 := percentile(inclusive, 75)

	return FuncStats{
		// Reconstruct the true call count from the sampled subset.
		Count:          n + (n-1)*(rate-1),
		SampledCount:   n,
		SampleRate:     rate,
		Total:          total,
		TotalExclusive: totalExclusive,
		Min:            inclusive[0],
		Max:            inclusive[n-1],
		Avg:            SafeDiv(total, float64(n), 0),
		Q1:             q1,
		Median:         median,
		Q3:             q3,
		IQR:            q3 - q1,
	}, true
}

// percentile interpolates linearly between the two closest ranks of an
// ascending-sorted sample.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := (float64(n) - 1) * p / 100
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// SafeDiv divides a by b, returning the fallback on a zero denominator.
func SafeDiv(a, b, fallback float64) float64 {
	if b == 0 {
		return fallback
	}
	return a / b
}

func rateOf(rates map[string]int, name string) int {
	rate, ok := rates[name]
	if !ok || rate < 1 {
		return 1
	}
	return rate
}
