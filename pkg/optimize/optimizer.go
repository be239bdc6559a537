package optimize

import (
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/tracekit/probeopt/pkg/cache"
	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/stats"
)

// State tracks the progress of one optimization invocation through its
// phases.
type State int

const (
	StateIdle State = iota
	StateResourcesLoaded
	StatePreRunFiltered
	StateRunConfigured
	StatePostRunUpdated
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateResourcesLoaded: "resources-loaded",
	StatePreRunFiltered:  "pre-run-filtered",
	StateRunConfigured:   "run-configured",
	StatePostRunUpdated:  "post-run-updated",
}

func (s State) String() string {
	return stateNames[s]
}

// RunConfig identifies the profiled command: the executable, the shared
// libraries it links, the workload it is run against and the program version.
type RunConfig struct {
	Binary   string
	Libs     []string
	Workload string
	Version  string
}

// Optimizer sequences the enabled techniques around one trace run. It is an
// explicit per-invocation object: construct one, build the pipeline, then
// drive it through LoadResources, PreRun, RunParams and PostRun.
type Optimizer struct {
	run      RunConfig
	preset   Preset
	enabled  []Technique
	disabled []Technique
	pipeline map[Technique]struct{}

	params *Params
	infer  bool
	cache  *cache.Cache
	bounds map[string]Bounds
	force  bool
	keep   bool

	graph *callgraph.Graph
	prev  *callgraph.Graph
	stats *stats.DynamicStats

	state  State
	logger log.Logger
}

type Option func(*Optimizer)

func WithPreset(preset Preset) Option {
	return func(o *Optimizer) {
		o.preset = preset
	}
}

func WithEnabled(techniques ...Technique) Option {
	return func(o *Optimizer) {
		o.enabled = append(o.enabled, techniques...)
	}
}

func WithDisabled(techniques ...Technique) Option {
	return func(o *Optimizer) {
		o.disabled = append(o.disabled, techniques...)
	}
}

// WithParams supplies explicit parameters; call-graph based inference is then
// skipped so the supplied values stay authoritative.
func WithParams(params *Params) Option {
	return func(o *Optimizer) {
		o.params = params
		o.infer = false
	}
}

func WithCache(c *cache.Cache) Option {
	return func(o *Optimizer) {
		o.cache = c
	}
}

func WithStaticBounds(bounds map[string]Bounds) Option {
	return func(o *Optimizer) {
		o.bounds = bounds
	}
}

// WithForceExtract rebuilds the call graph from the raw edges even when a
// cached artifact exists.
func WithForceExtract(force bool) Option {
	return func(o *Optimizer) {
		o.force = force
	}
}

// WithKeepStats leaves an already cached statistics artifact untouched during
// the post-run update.
func WithKeepStats(keep bool) Option {
	return func(o *Optimizer) {
		o.keep = keep
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

func NewOptimizer(run RunConfig, opts ...Option) *Optimizer {
	o := &Optimizer{
		run:      run,
		pipeline: make(map[Technique]struct{}),
		params:   DefaultParams(),
		infer:    true,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.buildPipeline()

	return o
}

// buildPipeline resolves the technique selection: the preset techniques plus
// the explicitly enabled ones, minus the explicitly disabled ones. Disable
// wins over a conflicting enable.
func (o *Optimizer) buildPipeline() {
	for _, technique := range o.preset.Techniques() {
		o.pipeline[technique] = struct{}{}
	}
	for _, technique := range o.enabled {
		o.pipeline[technique] = struct{}{}
	}
	for _, technique := range o.disabled {
		delete(o.pipeline, technique)
	}

	o.logger.Debug().
		Str("preset", o.preset.String()).
		Int("techniques", len(o.pipeline)).
		Msg("pipeline resolved")
}

// Enabled reports whether the technique is part of the resolved pipeline.
func (o *Optimizer) Enabled(technique Technique) bool {
	_, ok := o.pipeline[technique]
	return ok
}

func (o *Optimizer) State() State {
	return o.state
}

func (o *Optimizer) Graph() *callgraph.Graph {
	return o.graph
}

func (o *Optimizer) Stats() *stats.DynamicStats {
	return o.stats
}

func (o *Optimizer) Params() *Params {
	return o.params
}

// LoadResources prepares the call graph and prior statistics for the run.
// The graph comes from the cache when possible, otherwise it is built from
// the raw edges and its pre-mutation copy stored for reuse and diffing. The
// previous version's graph and the prior statistics degrade to cold-start
// defaults when absent; a graph without a root function is a fatal error.
func (o *Optimizer) LoadResources(rawEdges map[string][]string) error {
	if len(o.pipeline) == 0 {
		o.logger.Debug().Msg("empty pipeline, nothing to do")
		return nil
	}

	graph, err := o.loadGraph(rawEdges)
	if err != nil {
		return err
	}
	o.graph = graph
	o.prev = o.loadPreviousGraph()
	if o.stats, err = o.loadStats(); err != nil {
		return err
	}

	if o.infer {
		o.params.Infer(o.graph, o.preset)
	}

	o.state = StateResourcesLoaded

	return nil
}

func (o *Optimizer) loadGraph(rawEdges map[string][]string) (*callgraph.Graph, error) {
	key := o.graphKey()
	if o.cache != nil && !o.force {
		artifact := new(callgraph.Artifact)
		found, err := o.cache.Extract(key, artifact)
		if err != nil {
			return nil, err
		}
		if found {
			return callgraph.FromArtifact(artifact, callgraph.WithGraphLogger(o.logger))
		}
	}

	graph := callgraph.NewGraph(
		callgraph.WithGraphLogger(o.logger),
		callgraph.WithGraphVersion(o.run.Version),
	)
	if err := graph.Build(rawEdges); err != nil {
		return nil, errors.Wrap(err, "building call graph")
	}
	if o.cache != nil {
		// The copy captured before any technique mutates the graph is what
		// gets cached.
		if err := o.cache.Store(key, graph.ToArtifact(), !o.force); err != nil {
			return nil, err
		}
	}

	return graph, nil
}

func (o *Optimizer) loadPreviousGraph() *callgraph.Graph {
	if o.cache == nil || !o.Enabled(DiffTracing) {
		return nil
	}
	prevKey, found, err := o.cache.PreviousGraphKey(o.graphKey())
	if err != nil || !found {
		return nil
	}
	artifact := new(callgraph.Artifact)
	if found, err := o.cache.Extract(prevKey, artifact); err != nil || !found {
		return nil
	}
	prev, err := callgraph.FromArtifact(artifact)
	if err != nil {
		o.logger.Warn().Err(err).Msg("discarding unusable previous call graph")
		return nil
	}

	return prev
}

// loadStats degrades a missing statistics entry to the empty cold-start
// baseline; an unreadable one is a fatal configuration error.
func (o *Optimizer) loadStats() (*stats.DynamicStats, error) {
	dynStats := stats.NewDynamicStats()
	if o.cache == nil {
		return dynStats, nil
	}
	if _, err := o.cache.Extract(o.statsKey(), dynStats); err != nil {
		return nil, errors.Wrap(err, "loading cached statistics")
	}

	return dynStats, nil
}

// PreRun executes the enabled pre-run techniques against the call graph, in
// fixed order, and returns the function set to instrument together with the
// sampling value of each function. When diff tracing is the only enabled
// technique the set is restricted to the changed functions.
func (o *Optimizer) PreRun() (map[string]int, error) {
	if o.state != StateResourcesLoaded {
		return nil, errors.Errorf("pre-run phase requires loaded resources, state is %s", o.state)
	}

	if o.Enabled(DiffTracing) && o.prev != nil {
		o.graph.DiffAgainst(o.prev, o.params.DiffKeepLeaf)
	}
	if o.Enabled(GraphShaping) {
		if o.params.BottomUpShaping {
			steps := BottomUp(o.graph, o.params.ChainLength)
			o.logger.Debug().Int("steps", steps).Msg("bottom-up projection done")
		} else {
			TopDown(o.graph, o.params.ChainLength, o.params.ProjKeepLeaf)
		}
	}
	if o.Enabled(BaselineStatic) {
		ComplexityFilter(o.graph, o.bounds, o.params.StaticComplexity, o.params.StaticKeepTop)
	}
	if o.Enabled(BaselineDynamic) {
		FilterFunctions(o.graph, o.stats.GlobalStats, o.params)
	}
	if o.Enabled(DynamicSampling) {
		SetSampling(o.graph, o.stats.GlobalStats, o.params)
	}

	o.state = StatePreRunFiltered

	diffSolo := o.Enabled(DiffTracing) && len(o.pipeline) == 1
	funcs := o.graph.Functions(diffSolo)

	o.logger.Info().
		Int("instrumented", len(funcs)).
		Int("total", o.graph.Len()).
		Msg("pre-run filtering done")

	return funcs, nil
}

// RunParams collects the parameters of the run-time techniques into a bag
// forwarded to the external instrumentation engine; this engine cannot
// execute them itself.
func (o *Optimizer) RunParams() map[string]interface{} {
	bag := make(map[string]interface{})
	if o.Enabled(DynamicProbing) {
		bag["probing-threshold"] = o.params.ProbingThreshold
		bag["probing-reattach"] = o.params.ProbingReattach
	}
	if o.Enabled(TimedSampling) {
		bag["timed-sampling-hz"] = o.params.TimedSamplingHz
	}
	if o.state == StatePreRunFiltered {
		o.state = StateRunConfigured
	}

	return bag
}

// PostRun recomputes the dynamic statistics from the freshly collected raw
// samples and persists them for the next run. It is a no-op when no enabled
// technique consumes statistics.
func (o *Optimizer) PostRun(samples stats.RawSamples, spawns map[int][]stats.SpawnRecord, threads map[int]stats.Thread) (*stats.DynamicStats, error) {
	updates := false
	for technique := range o.pipeline {
		if technique.UpdatesStats() {
			updates = true
			break
		}
	}
	if !updates {
		return nil, nil
	}

	rates := make(map[string]int)
	if o.graph != nil {
		rates = o.graph.Functions(false)
	}
	dynStats := stats.FromRun(samples, spawns, threads, rates)

	if o.cache != nil {
		if err := o.cache.Store(o.statsKey(), dynStats, o.keep); err != nil {
			return nil, err
		}
	}

	o.stats = dynStats
	o.state = StatePostRunUpdated

	return dynStats, nil
}

func (o *Optimizer) graphKey() cache.GraphKey {
	return cache.GraphKey{
		Binary:  o.run.Binary,
		Libs:    o.run.Libs,
		Version: o.run.Version,
	}
}

func (o *Optimizer) statsKey() cache.StatsKey {
	return cache.StatsKey{
		Binary:   o.run.Binary,
		Workload: o.run.Workload,
	}
}
