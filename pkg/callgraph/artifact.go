package callgraph

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Artifact is the self-describing cache format of a call graph resource.
// Levels and back-edges are not stored: they are recomputed on load.
type Artifact struct {
	CallGraph    ArtifactGraph   `json:"call_graph"`
	ControlFlow  json.RawMessage `json:"control_flow,omitempty"`
	MinorVersion string          `json:"minor_version"`
}

type ArtifactGraph struct {
	CGMap     map[string]*Node `json:"cg_map"`
	Recursive []string         `json:"recursive"`
}

// ToArtifact serializes the graph into the cache format.
func (g *Graph) ToArtifact() *Artifact {
	nodes := make(map[string]*Node, len(g.nodes))
	for name, node := range g.nodes {
		clone := *node
		clone.Callers = append([]string{}, node.Callers...)
		clone.Callees = append([]string{}, node.Callees...)
		nodes[name] = &clone
	}
	return &Artifact{
		CallGraph: ArtifactGraph{
			CGMap:     nodes,
			Recursive: g.RecursiveFuncs(),
		},
		MinorVersion: g.minor,
	}
}

// FromArtifact restores a graph from the cache format and recomputes the
// derived structures. It fails when the artifact misses the root function.
func FromArtifact(artifact *Artifact, opts ...GraphOption) (*Graph, error) {
	if artifact == nil || len(artifact.CallGraph.CGMap) == 0 {
		return nil, ErrEmptyGraph
	}
	if _, ok := artifact.CallGraph.CGMap[RootFunc]; !ok {
		return nil, ErrMissingRoot
	}

	g := NewGraph(opts...)
	g.minor = artifact.MinorVersion
	for name, node := range artifact.CallGraph.CGMap {
		clone := *node
		clone.Name = name
		if clone.Callers == nil {
			clone.Callers = []string{}
		}
		if clone.Callees == nil {
			clone.Callees = []string{}
		}
		if clone.Sample == 0 {
			clone.Sample = 1
		}
		// Levels are derived state and recomputed below.
		clone.Level = UnreachableLevel
		g.nodes[name] = &clone
		g.backedges[name] = make(map[string]struct{})
	}
	for _, name := range artifact.CallGraph.Recursive {
		g.recursive[name] = struct{}{}
	}

	reachable := g.findBackedges()
	g.assignLevels(reachable)
	g.dirty = true

	return g, nil
}

// WriteArtifact encodes the graph cache artifact as JSON.
func (a *Artifact) WriteArtifact(w io.Writer) error {
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(a); err != nil {
		return errors.Wrap(err, "failed to encode call graph artifact")
	}
	return nil
}

// ReadArtifact decodes a graph cache artifact from JSON.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	artifact := new(Artifact)
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(artifact); err != nil {
		return nil, errors.Wrap(err, "failed to decode call graph artifact")
	}
	return artifact, nil
}
