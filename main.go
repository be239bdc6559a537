package main

import (
	"github.com/tracekit/probeopt/pkg/cmd"
)

func main() {
	cmd.Execute()
}
