package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

// Version of the current build, set with -ldflags "-X main.Version=...".
var Version string

const configFlag = "config"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "probewatch <command> [flags]",
		Short:         "RIPE Atlas connectivity and path quality monitor",
		Long:          "Tracks per-network probe connectivity and traceroute path changes from the RIPE Atlas stream.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: heredoc.Doc(`
			$ probewatch serve
			$ probewatch serve -c ./configs/config.yaml
			$ probewatch replay ./capture.jsonl
			$ probewatch version
		`),
	}

	rootCmd.PersistentFlags().StringP(configFlag, "c", "", "Config file (defaults to configs/config.yaml when present)")

	rootCmd.AddCommand(
		serveCmd(),
		replayCmd(),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if Version == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Version information not available")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "probewatch version %s\n", Version)
			return nil
		},
	}
}
