package callgraph

import (
	log "github.com/rs/zerolog"
)

// UnreachableLevel marks functions that exist in the call graph but cannot be
// reached from the root function; they are kept for diagnostics yet never
// participate in level-based shaping.
const UnreachableLevel = -1

// RootFunc anchors every traversal and can never be pruned.
const RootFunc = "main"

// Node represents a single call graph function.
type Node struct {
	Name       string     `json:"name"`
	Level      int        `json:"level"`
	Leaf       bool       `json:"leaf"`
	Filtered   bool       `json:"filtered"`
	Diff       bool       `json:"diff"`
	Sample     int        `json:"sample"`
	Complexity Complexity `json:"complexity"`
	Callers    []string   `json:"callers"`
	Callees    []string   `json:"callees"`
}

// Graph is the call graph resource: the nodes, the level partitioning rooted
// at "main", the recursion information and the lazily computed bottom and top
// sets. It is mutated in place by the optimization techniques.
type Graph struct {
	nodes     map[string]*Node
	levels    [][]string
	recursive map[string]struct{}
	backedges map[string]map[string]struct{}

	// bottom and top are cached and invalidated whenever filtered flags change.
	bottom map[string]struct{}
	top    map[string]struct{}
	dirty  bool

	minor  string
	logger log.Logger
}

type GraphOption func(*Graph)

func WithGraphLogger(logger log.Logger) GraphOption {
	return func(g *Graph) {
		g.logger = logger
	}
}

func WithGraphVersion(minor string) GraphOption {
	return func(g *Graph) {
		g.minor = minor
	}
}

func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node),
		recursive: make(map[string]struct{}),
		backedges: make(map[string]map[string]struct{}),
		dirty:     true,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

func newNode(name string) *Node {
	return &Node{
		Name:       name,
		Level:      UnreachableLevel,
		Sample:     1,
		Complexity: ComplexityUnknown,
		Callers:    []string{},
		Callees:    []string{},
	}
}

// Node returns the node for the given function name, or nil.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Len returns the number of functions currently in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Levels returns the level partitioning: one set of function names per depth,
// with level 0 holding only the root function.
func (g *Graph) Levels() [][]string {
	return g.levels
}

// Depth returns the number of levels of the reachable part of the graph.
func (g *Graph) Depth() int {
	return len(g.levels)
}

// Recursive reports whether the function participates in a cycle.
func (g *Graph) Recursive(name string) bool {
	_, ok := g.recursive[name]
	return ok
}

// RecursiveFuncs returns the sorted set of functions participating in cycles.
func (g *Graph) RecursiveFuncs() []string {
	return sortedKeys(g.recursive)
}

// Backedge reports whether the caller -> callee edge closes a cycle.
func (g *Graph) Backedge(caller, callee string) bool {
	targets, ok := g.backedges[caller]
	if !ok {
		return false
	}
	_, ok = targets[callee]
	return ok
}

// Version returns the program version the graph was extracted for.
func (g *Graph) Version() string {
	return g.minor
}
