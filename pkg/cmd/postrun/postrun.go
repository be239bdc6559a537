package postrun

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tracekit/probeopt/internal/settings"
	"github.com/tracekit/probeopt/pkg/cache"
	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/cmd/options"
	"github.com/tracekit/probeopt/pkg/report"
	"github.com/tracekit/probeopt/pkg/stats"
)

const CmdName = "postrun"

type Options struct {
	binary   string
	libs     []string
	workload string
	version  string

	samplesFile string
	spawnsFile  string
	threadsFile string
	ratesFile   string

	cacheDir     string
	keepExisting bool

	reportFile string

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Aggregate the collected samples after a profiling run",
		Long: `
postrun turns the raw per-call timing samples of a finished profiling run into
the dynamic statistics resource and persists it for the next run of the same
command configuration.
`,
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.binary, "binary", "b", "", "Path to the profiled executable")
	cmd.Flags().StringSliceVar(&o.libs, "lib", nil, "Shared library linked by the executable (repeatable)")
	cmd.Flags().StringVarP(&o.workload, "workload", "w", "", "Workload the executable was profiled against")
	cmd.Flags().StringVar(&o.version, "version", "", "Program version that was profiled")

	cmd.Flags().StringVarP(&o.samplesFile, "samples", "s", "", "Path to the raw samples JSON file")
	cmd.Flags().StringVar(&o.spawnsFile, "spawns", "", "Path to the process spawn records JSON file")
	cmd.Flags().StringVar(&o.threadsFile, "threads", "", "Path to the thread records JSON file")
	cmd.Flags().StringVar(&o.ratesFile, "rates", "", "Path to the per-function sampling rates JSON file")

	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", settings.DefaultCacheDir(), "Directory holding the cached artifacts")
	cmd.Flags().BoolVar(&o.keepExisting, "keep-existing", false, "Do not overwrite already cached statistics")

	cmd.Flags().StringVar(&o.reportFile, "report", "", "Write a diagnostic report to this file")

	cmd.MarkFlagRequired("binary")
	cmd.MarkFlagRequired("samples")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	var samples stats.RawSamples
	if err := readJSON(o.samplesFile, &samples); err != nil {
		return err
	}
	spawns := make(map[int][]stats.SpawnRecord)
	if o.spawnsFile != "" {
		if err := readJSON(o.spawnsFile, &spawns); err != nil {
			return err
		}
	}
	threads := make(map[int]stats.Thread)
	if o.threadsFile != "" {
		if err := readJSON(o.threadsFile, &threads); err != nil {
			return err
		}
	}
	rates := make(map[string]int)
	if o.ratesFile != "" {
		if err := readJSON(o.ratesFile, &rates); err != nil {
			return err
		}
	}

	dynStats := stats.FromRun(samples, spawns, threads, rates)

	c, err := cache.New(o.cacheDir, cache.WithLogger(o.Logger))
	if err != nil {
		return err
	}
	key := cache.StatsKey{Binary: o.binary, Workload: o.workload}
	if err := c.Store(key, dynStats, o.keepExisting); err != nil {
		return errors.Wrap(err, "failed to cache dynamic statistics")
	}

	o.Logger.Info().
		Int("functions", len(dynStats.GlobalStats)).
		Int("threads", len(dynStats.Threads)).
		Int("processes", len(dynStats.Hierarchy)).
		Msg("dynamic statistics cached")

	if o.reportFile != "" {
		return o.writeReport(c, dynStats)
	}

	return nil
}

// writeReport derives the diagnostic report against the cached call graph of
// the profiled version. A missing graph only skips the report.
func (o *Options) writeReport(c *cache.Cache, dynStats *stats.DynamicStats) error {
	artifact := new(callgraph.Artifact)
	key := cache.GraphKey{Binary: o.binary, Libs: o.libs, Version: o.version}
	found, err := c.Extract(key, artifact)
	if err != nil {
		return err
	}
	if !found {
		o.Logger.Warn().Msg("no cached call graph, skipping report")
		return nil
	}
	g, err := callgraph.FromArtifact(artifact)
	if err != nil {
		return errors.Wrap(err, "restoring cached call graph")
	}

	r := report.NewReport(
		report.WithReportBinary(o.binary),
		report.WithReportGraph(g),
		report.WithReportCallAssumptions(g, dynStats.GlobalStats),
	)

	f, err := os.Create(o.reportFile)
	if err != nil {
		return errors.Wrapf(err, "creating report file %s", o.reportFile)
	}
	defer f.Close()

	return r.WriteReport(f)
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}

	return nil
}
