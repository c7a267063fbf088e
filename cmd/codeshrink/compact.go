package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"codeshrink/internal/compaction"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/ingest"
	"codeshrink/internal/paths"
	"codeshrink/internal/slogutil"
	"codeshrink/internal/storage"
	"codeshrink/internal/syntax"
)

var (
	compactFormat   string
	compactLang     string
	compactReport   bool
	compactNoRename bool
	compactOutput   string

	expandOutput string
	expandCheck  bool

	reportFormat string
)

var compactCmd = &cobra.Command{
	Use:   "compact <file|->",
	Short: "Compact one source file",
	Long: `Compact one source file, or stdin when the argument is "-".

The language is taken from the file extension unless --lang is given.
The artifact is written to stdout, or to --output.

Examples:
  codeshrink compact main.py
  codeshrink compact main.py --report
  cat app.js | codeshrink compact - --lang javascript
  codeshrink compact main.py --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runCompact,
}

var expandCmd = &cobra.Command{
	Use:   "expand <file|->",
	Short: "Undo the dictionary substitution of an artifact",
	Long: `Replace every marker of an artifact with its dictionary pattern and drop
the header. Renaming and normalization are not reversed.

Examples:
  codeshrink expand main.py.cs
  codeshrink expand - --check < main.py.cs`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

var reportCmd = &cobra.Command{
	Use:   "report <original> <compacted>",
	Short: "Compare an original file with its artifact",
	Args:  cobra.ExactArgs(2),
	RunE:  runReport,
}

func init() {
	compactCmd.Flags().StringVar(&compactFormat, "format", "human", "Output format (human, json, yaml, toml)")
	compactCmd.Flags().StringVar(&compactLang, "lang", "", "Language tag, overriding the file extension")
	compactCmd.Flags().BoolVar(&compactReport, "report", false, "Print the compression report to stderr (human format)")
	compactCmd.Flags().BoolVar(&compactNoRename, "no-rename", false, "Skip identifier renaming")
	compactCmd.Flags().StringVarP(&compactOutput, "output", "o", "", "Write the artifact to this file")

	expandCmd.Flags().StringVarP(&expandOutput, "output", "o", "", "Write the expanded text to this file")
	expandCmd.Flags().BoolVar(&expandCheck, "check", false, "Fail on a malformed header instead of passing the text through")

	reportCmd.Flags().StringVar(&reportFormat, "format", "human", "Output format (human, json, yaml, toml)")

	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(reportCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	start := time.Now()
	a, err := newApp(cmd, slogutil.SubsystemCompact)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	if len(data) > a.cfg.Limits.MaxInputBytes {
		return cserrors.New(cserrors.InputTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", path, len(data), a.cfg.Limits.MaxInputBytes), nil).
			WithDetails(map[string]int{"bytes": len(data), "limit": a.cfg.Limits.MaxInputBytes})
	}
	if !ingest.IsText(filepath.Base(path), data) {
		return cserrors.New(cserrors.UnsupportedInput, path+" is not text", nil)
	}

	unit := compaction.NewSourceUnit(path, string(data))
	if compactLang != "" {
		unit.Language = syntax.ParseLanguage(compactLang)
	}
	opts := compaction.OptionsFromConfig(a.cfg)
	if compactNoRename {
		opts.RenameIdentifiers = false
	}

	ctx, cancel := a.withTimeout(cmd.Context())
	defer cancel()
	res, err := compactCached(ctx, a, opts, unit)
	if err != nil {
		return err
	}

	if compactOutput != "" {
		if err := os.WriteFile(compactOutput, []byte(res.Artifact), 0644); err != nil {
			return err
		}
	}

	switch {
	case compactFormat != string(FormatHuman):
		if err := printResponse(cmd, res, compactFormat); err != nil {
			return err
		}
	case compactOutput == "":
		if _, err := fmt.Fprint(cmd.OutOrStdout(), res.Artifact); err != nil {
			return err
		}
	}
	if compactReport && compactFormat == string(FormatHuman) {
		fmt.Fprint(cmd.ErrOrStderr(), res.Report.String())
	}

	a.logger.Debug("Compact completed",
		"path", path,
		"language", unit.Language,
		"ratio", res.Report.Ratio,
		"duration", time.Since(start).Milliseconds(),
	)
	return nil
}

// compactCached compacts unit through the artifact cache when the project
// is initialized and caching is enabled.
func compactCached(ctx context.Context, a *app, opts compaction.Options, unit compaction.SourceUnit) (*compaction.Result, error) {
	c := a.newCompactor(opts)
	if !a.cfg.Cache.Enabled || initializedRoot(a.root) == "" {
		return c.Compact(ctx, unit), nil
	}

	db, err := storage.OpenPath(paths.GetCacheDBPath(a.root), a.logger)
	if err != nil {
		a.logger.Warn("Artifact cache unavailable", "error", err.Error())
		return c.Compact(ctx, unit), nil
	}
	defer func() { _ = db.Close() }()

	cache := storage.NewArtifactCache(db, time.Duration(a.cfg.Cache.TtlSeconds)*time.Second)
	key := storage.Key(unit.Language, opts.Fingerprint(), unit.Text)
	if res, ok, err := cache.Get(ctx, key); err == nil && ok {
		return res, nil
	}

	res := c.Compact(ctx, unit)
	if ctx.Err() != nil {
		// A cut-short run is still a valid artifact but is not cached.
		return res, nil
	}
	if err := cache.Put(ctx, key, unit.Language, opts.Fingerprint(), res); err != nil {
		a.logger.Warn("Failed to cache artifact", "error", err.Error())
	}
	return res, nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	text := string(data)
	if expandCheck {
		if _, _, err := compaction.ParseArtifact(text); err != nil {
			return cserrors.New(cserrors.UnsupportedInput, "malformed artifact", err)
		}
	}
	expanded := compaction.Expand(text)

	if expandOutput != "" {
		return os.WriteFile(expandOutput, []byte(expanded), 0644)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), expanded)
	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	original, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	compacted, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}
	return printResponse(cmd, compaction.NewReport(string(original), string(compacted)), reportFormat)
}
