package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd(log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "metalus",
		Short:         "Metalus assembles and runs data-processing applications from declarative pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCmd(log))
	return cmd
}
