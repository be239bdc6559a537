package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PrintRight writes a right-aligned status line to stderr, keeping stdout
// free for machine-readable output.
func PrintRight(text string) {
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		width = 80
	}

	padding := width - len([]rune(text))
	if padding < 0 {
		padding = 0
	}

	fmt.Fprintf(os.Stderr, "%s%s\n", spaces(padding), text)
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}

func ProgressBar(percent int, width int) string {
	filled := (percent * width) / 100
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("%s%s",
		strings.Repeat("█", filled),
		strings.Repeat(" ", width-filled),
	)
}

// PruneSummary renders a one-line summary of how many functions survived
// the optimization pipeline.
func PruneSummary(surviving, total int, width int) string {
	percent := 100
	if total > 0 {
		percent = (surviving * 100) / total
	}
	return fmt.Sprintf("[%s] %d/%d functions kept", ProgressBar(percent, width), surviving, total)
}
