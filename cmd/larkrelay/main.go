package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/larkrelay/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "larkrelay",
		Short:         "Relay Lark bot messages to Claude and reply in thread",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $CONFIG_PATH or ./config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "larkrelay %s\n", version.GetInfo())
		},
	}
}
