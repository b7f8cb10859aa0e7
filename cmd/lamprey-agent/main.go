// Package main provides the lamprey-agent binary.
//
// The agent core is a library embedded into a managed-runtime process;
// this binary exists for operators: it reports build information and runs
// an offline selftest that replays a canned instrumentation event trace
// through a fully wired debugger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lamprey-dbg/lamprey/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "lamprey-agent",
		Short:         "Lamprey - live-attach debugger for managed runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newSelftestCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Lamprey Agent version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
