// Package stats turns raw per-call timing samples, organized by thread and by
// process hierarchy, into the per-function statistical summaries consumed by
// the dynamic optimization techniques.
//
// Global statistics are aggregated only from bottom processes of the traced
// process tree (processes that forked no children), since exclusive-time
// accounting is only reliable there. Per-thread statistics are computed
// independently for every thread with no such restriction.
package stats

// FuncSamples carries the raw per-call durations of one function observed on
// one thread, as delivered by the external tracing engine.
type FuncSamples struct {
	Inclusive []float64 `json:"i"`
	Exclusive []float64 `json:"e"`
}

// RawSamples maps thread id -> function name -> raw samples.
type RawSamples map[int]map[string]FuncSamples

// SpawnRecord is one observed process spawn: the parent pid and the duration
// of the spawned process. A pid can carry several records when the process
// image is replaced through exec.
type SpawnRecord struct {
	ParentPID int     `json:"ppid"`
	Duration  float64 `json:"duration"`
}

// Thread records the owning process and observed duration of a traced thread.
type Thread struct {
	PID      int     `json:"pid"`
	Duration float64 `json:"duration"`
}

// Process is one entry of the reconstructed process hierarchy.
type Process struct {
	Parents  []int   `json:"ppid"`
	Children []int   `json:"spawn"`
	Threads  []int   `json:"threads"`
	Bottom   bool    `json:"bottom"`
	Depth    int     `json:"level"`
	Duration float64 `json:"duration"`
}

// FuncStats is the statistical summary of one function's observed calls.
type FuncStats struct {
	Count          int     `json:"count"`
	SampledCount   int     `json:"sampled_count"`
	SampleRate     int     `json:"sample_rate"`
	Total          float64 `json:"total"`
	TotalExclusive float64 `json:"total_exclusive"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Avg            float64 `json:"avg"`
	Q1             float64 `json:"Q1"`
	Median         float64 `json:"median"`
	Q3             float64 `json:"Q3"`
	IQR            float64 `json:"IQR"`
}

// DynamicStats is the per-run statistics resource: it is produced after every
// profiling run and consumed read-only at the start of the next one.
type DynamicStats struct {
	GlobalStats map[string]FuncStats         `json:"global_stats"`
	PerThread   map[int]map[string]FuncStats `json:"per_thread"`
	Hierarchy   map[int]*Process             `json:"process_hierarchy"`
	Threads     map[int]Thread               `json:"thread"`
}

// NewDynamicStats returns an empty statistics resource, used as the cold-start
// baseline when no prior run is cached.
func NewDynamicStats() *DynamicStats {
	return &DynamicStats{
		GlobalStats: make(map[string]FuncStats),
		PerThread:   make(map[int]map[string]FuncStats),
		Hierarchy:   make(map[int]*Process),
		Threads:     make(map[int]Thread),
	}
}
