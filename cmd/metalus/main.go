// Command metalus is a thin driver: it loads an Application document, builds
// an execution plan, runs it, and reports the plan's terminal state. It
// contains no business logic of its own — that lives in internal/config,
// internal/plan, and internal/pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := newRootCmd(log).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
