package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information - these can be set during build with ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Display version information",
		Aliases: []string{"v"},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mediagw %s\n", Version)
			fmt.Fprintf(out, "commit:     %s\n", GitCommit)
			fmt.Fprintf(out, "build date: %s\n", BuildDate)
			fmt.Fprintf(out, "go:         %s\n", runtime.Version())
		},
	}
}
