package prerun

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tracekit/probeopt/internal/output"
	"github.com/tracekit/probeopt/internal/settings"
	"github.com/tracekit/probeopt/pkg/cache"
	"github.com/tracekit/probeopt/pkg/cmd/graph"
	"github.com/tracekit/probeopt/pkg/cmd/options"
	"github.com/tracekit/probeopt/pkg/optimize"
)

const (
	CmdName = "prerun"

	summaryBarWidth = 40
)

type Options struct {
	edges    string
	binary   string
	libs     []string
	workload string
	version  string

	preset     string
	enable     []string
	disable    []string
	paramsFile string
	boundsFile string

	cacheDir string
	noCache  bool
	force    bool

	outputFile string

	*options.CommonOptions
}

// Instrumentation is what prerun hands to the external tracing engine: the
// surviving functions with their sampling values, and the parameters of the
// techniques the engine executes itself.
type Instrumentation struct {
	Functions map[string]int         `json:"functions"`
	RunParams map[string]interface{} `json:"run_params"`
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Run the optimization pipeline before a profiling run",
		Long: `
prerun resolves the optimization pipeline, loads or builds the call graph and
the prior-run statistics, applies the enabled pre-run techniques and emits the
set of functions to instrument together with their sampling values.
`,
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.edges, "edges", "e", "", "Path to the raw call edges JSON file")
	cmd.Flags().StringVarP(&o.binary, "binary", "b", "", "Path to the profiled executable")
	cmd.Flags().StringSliceVar(&o.libs, "lib", nil, "Shared library linked by the executable (repeatable)")
	cmd.Flags().StringVarP(&o.workload, "workload", "w", "", "Workload the executable is profiled against")
	cmd.Flags().StringVar(&o.version, "version", "", "Program version being profiled")

	cmd.Flags().StringVar(&o.preset, "preset", optimize.PresetCustom.String(), "Pipeline preset (custom, basic, advanced, full)")
	cmd.Flags().StringSliceVar(&o.enable, "enable", nil, "Technique to enable on top of the preset (repeatable)")
	cmd.Flags().StringSliceVar(&o.disable, "disable", nil, "Technique to disable from the preset (repeatable)")
	cmd.Flags().StringVar(&o.paramsFile, "params", "", "Path to a TOML parameter file")
	cmd.Flags().StringVar(&o.boundsFile, "bounds", "", "Path to the static bounds analysis JSON file")

	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", settings.DefaultCacheDir(), "Directory holding the cached artifacts")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "Run without reading or writing cached artifacts")
	cmd.Flags().BoolVar(&o.force, "force", false, "Rebuild the call graph even when a cached one exists")

	cmd.Flags().StringVarP(&o.outputFile, "output", "o", "", "Write the instrumentation set to this file instead of stdout")

	cmd.MarkFlagRequired("binary")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	optimizer, err := o.buildOptimizer()
	if err != nil {
		return err
	}

	var raw map[string][]string
	if o.edges != "" {
		if raw, err = graph.ReadEdges(o.edges); err != nil {
			return err
		}
	}

	if err := optimizer.LoadResources(raw); err != nil {
		return err
	}
	if optimizer.State() == optimize.StateIdle {
		o.Logger.Info().Msg("no optimization technique enabled, nothing to do")
		return nil
	}

	funcs, err := optimizer.PreRun()
	if err != nil {
		return err
	}
	instr := &Instrumentation{
		Functions: funcs,
		RunParams: optimizer.RunParams(),
	}

	if err := o.write(instr); err != nil {
		return err
	}

	output.PrintRight(output.PruneSummary(len(funcs), optimizer.Graph().Len(), summaryBarWidth))

	return nil
}

func (o *Options) buildOptimizer() (*optimize.Optimizer, error) {
	preset, err := optimize.ParsePreset(o.preset)
	if err != nil {
		return nil, err
	}
	enabled, err := parseTechniques(o.enable)
	if err != nil {
		return nil, err
	}
	disabled, err := parseTechniques(o.disable)
	if err != nil {
		return nil, err
	}

	opts := []optimize.Option{
		optimize.WithPreset(preset),
		optimize.WithEnabled(enabled...),
		optimize.WithDisabled(disabled...),
		optimize.WithForceExtract(o.force),
		optimize.WithLogger(o.Logger),
	}

	if o.paramsFile != "" {
		params, err := optimize.LoadParams(o.paramsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, optimize.WithParams(params))
	}
	if o.boundsFile != "" {
		bounds, err := readBounds(o.boundsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, optimize.WithStaticBounds(bounds))
	}
	if !o.noCache {
		c, err := cache.New(o.cacheDir, cache.WithLogger(o.Logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, optimize.WithCache(c))
	}

	run := optimize.RunConfig{
		Binary:   o.binary,
		Libs:     o.libs,
		Workload: o.workload,
		Version:  o.version,
	}

	return optimize.NewOptimizer(run, opts...), nil
}

func (o *Options) write(instr *Instrumentation) error {
	w := os.Stdout
	if o.outputFile != "" {
		f, err := os.Create(o.outputFile)
		if err != nil {
			return errors.Wrapf(err, "creating output file %s", o.outputFile)
		}
		defer f.Close()
		w = f
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(instr); err != nil {
		return errors.Wrap(err, "encoding instrumentation set")
	}

	return nil
}

func parseTechniques(names []string) ([]optimize.Technique, error) {
	techniques := make([]optimize.Technique, 0, len(names))
	for _, name := range names {
		technique, err := optimize.ParseTechnique(name)
		if err != nil {
			return nil, err
		}
		techniques = append(techniques, technique)
	}

	return techniques, nil
}

func readBounds(path string) (map[string]optimize.Bounds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading bounds file %s", path)
	}
	bounds := make(map[string]optimize.Bounds)
	if err := json.Unmarshal(data, &bounds); err != nil {
		return nil, errors.Wrapf(err, "decoding bounds file %s", path)
	}

	return bounds, nil
}
