package output_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracekit/probeopt/internal/output"
)

func TestProgressBarWidth(t *testing.T) {
	bar := output.ProgressBar(50, 10)
	require.Len(t, []rune(bar), 10)
	require.Equal(t, 5, strings.Count(bar, "█"))
}

func TestProgressBarFull(t *testing.T) {
	bar := output.ProgressBar(100, 8)
	require.Equal(t, strings.Repeat("█", 8), bar)
}

func TestPruneSummary(t *testing.T) {
	line := output.PruneSummary(2, 4, 10)
	require.Contains(t, line, "2/4 functions kept")

	// Zero totals must not divide by zero.
	line = output.PruneSummary(0, 0, 10)
	require.Contains(t, line, "0/0 functions kept")
}
