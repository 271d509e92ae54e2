// Package cli wires the sentinelforge commands.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X sentinelforge/internal/cli.Version=...".
var Version = "dev"

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "sentinelforge",
		Short: "Brute-force login detection for authentication logs",
		Long: `sentinelforge parses authentication logs and flags sources that fail
to log in too many times inside a sliding time window.

Run "analyze" on a log file for a one-shot report, or "serve" to detect
continuously over streamed events.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().String("config", "", "config file (YAML or JSON)")

	root.AddCommand(newAnalyzeCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func Execute() error {
	return NewRootCommand(os.Stdout, os.Stderr).Execute()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sentinelforge %s\n", Version)
		},
	}
}
