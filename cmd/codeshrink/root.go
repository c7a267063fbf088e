package main

import (
	"github.com/spf13/cobra"

	"codeshrink/internal/version"
)

var (
	// rootFlag is the project root holding .codeshrink; empty means the
	// current directory.
	rootFlag  string
	verbosity int
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "codeshrink",
	Short: "codeshrink - source compaction for size-limited model contexts",
	Long: `codeshrink shrinks source text before it is sent to a size-limited
language-model context. It strips comments and whitespace, renames local
identifiers to short names and replaces repeated substrings with markers
listed in a one-line dictionary header. The dictionary step can be undone
with 'codeshrink expand'.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("codeshrink version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Project root containing .codeshrink (default: current directory)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output")
}
