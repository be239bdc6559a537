package graph

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tracekit/probeopt/internal/settings"
	"github.com/tracekit/probeopt/pkg/cache"
	"github.com/tracekit/probeopt/pkg/callgraph"
	"github.com/tracekit/probeopt/pkg/cmd/options"
)

const CmdName = "graph"

type Options struct {
	edges    string
	binary   string
	libs     []string
	version  string
	cacheDir string
	force    bool

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Build and cache the call graph of a binary",
		Long: `
graph builds the call graph resource from an extracted "function -> callees"
mapping and stores it in the cache for the following profiling runs.
`,
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.edges, "edges", "e", "", "Path to the raw call edges JSON file")
	cmd.Flags().StringVarP(&o.binary, "binary", "b", "", "Path to the profiled executable")
	cmd.Flags().StringSliceVar(&o.libs, "lib", nil, "Shared library linked by the executable (repeatable)")
	cmd.Flags().StringVar(&o.version, "version", "", "Program version the call graph belongs to")
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", settings.DefaultCacheDir(), "Directory holding the cached artifacts")
	cmd.Flags().BoolVar(&o.force, "force", false, "Rebuild and overwrite an already cached call graph")

	cmd.MarkFlagRequired("edges")
	cmd.MarkFlagRequired("binary")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	raw, err := ReadEdges(o.edges)
	if err != nil {
		return err
	}

	g := callgraph.NewGraph(
		callgraph.WithGraphLogger(o.Logger),
		callgraph.WithGraphVersion(o.version),
	)
	if err := g.Build(raw); err != nil {
		return errors.Wrap(err, "failed to build call graph")
	}

	c, err := cache.New(o.cacheDir, cache.WithLogger(o.Logger))
	if err != nil {
		return err
	}
	key := cache.GraphKey{Binary: o.binary, Libs: o.libs, Version: o.version}
	if err := c.Store(key, g.ToArtifact(), !o.force); err != nil {
		return errors.Wrap(err, "failed to cache call graph")
	}

	o.Logger.Info().
		Int("functions", g.Len()).
		Int("levels", g.Depth()).
		Int("recursive", len(g.RecursiveFuncs())).
		Msg("call graph cached")

	return nil
}

// ReadEdges loads a raw "function -> callees" mapping from a JSON file.
func ReadEdges(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading call edges file %s", path)
	}
	edges := make(map[string][]string)
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, errors.Wrapf(err, "decoding call edges file %s", path)
	}

	return edges, nil
}
