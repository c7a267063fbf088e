package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeshrink/internal/config"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/paths"
	"codeshrink/internal/slogutil"
)

var (
	configFormat string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage codeshrink configuration",
	Long:  "View and manage the configuration stored in .codeshrink/config.json",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long: `Create .codeshrink/config.json with the default settings. Commands
run in an initialized project also use the artifact cache and log to
.codeshrink/logs.

Examples:
  codeshrink config init
  codeshrink config init --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (human, json, yaml, toml)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := getRoot()
	if err != nil {
		return err
	}

	path := paths.GetConfigPath(root)
	if _, statErr := os.Stat(path); statErr == nil && !configForce {
		// Already initialized is success.
		fmt.Fprintf(cmd.OutOrStdout(), "codeshrink already initialized.\nConfiguration at: %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'codeshrink config init --force' to overwrite it.")
		return nil
	}

	if err := config.DefaultConfig().Save(root); err != nil {
		return cserrors.New(cserrors.InternalError, "failed to write config file", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string         `json:"configPath" yaml:"configPath" toml:"configPath"`
	UsedDefaults bool           `json:"usedDefaults" yaml:"usedDefaults" toml:"usedDefaults"`
	Config       *config.Config `json:"config" yaml:"config" toml:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, slogutil.SubsystemCompact)
	if err != nil {
		return err
	}
	defer a.Close()

	path := paths.GetConfigPath(a.root)
	_, statErr := os.Stat(path)
	resp := &ConfigShowResponse{
		ConfigPath:   path,
		UsedDefaults: statErr != nil,
		Config:       a.cfg,
	}

	if configFormat != string(FormatHuman) {
		return printResponse(cmd, resp, configFormat)
	}

	if resp.UsedDefaults {
		fmt.Fprintln(cmd.OutOrStdout(), "Source: defaults (no config file found)")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\n", path)
	}
	// Human output is the YAML rendering of the config alone.
	return printResponse(cmd, a.cfg, string(FormatYAML))
}
