package callgraph

import (
	"github.com/pkg/errors"
)

var (
	// ErrMissingRoot is returned when an extracted call graph has no "main"
	// function: every projection algorithm is anchored on it, so the graph
	// cannot be used.
	ErrMissingRoot = errors.New("call graph has no root function \"main\"")

	// ErrEmptyGraph is returned when the raw edge mapping has no functions.
	ErrEmptyGraph = errors.New("call graph has no functions")
)
