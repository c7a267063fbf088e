package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codeshrink/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFormat == string(FormatHuman) {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return err
		}
		return printResponse(cmd, version.Get(), versionFormat)
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "human", "Output format (human, json, yaml, toml)")
	rootCmd.AddCommand(versionCmd)
}
