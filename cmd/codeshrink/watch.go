package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/ingest"
	"codeshrink/internal/slogutil"
	"codeshrink/internal/watcher"
)

var (
	watchOut       string
	watchNoCompact bool
	watchScope     string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Keep compacted artifacts in sync with a source tree",
	Long: `Ingest a directory into --out, then watch it and recompact files as they
change. Deleted files lose their artifacts. With --scope project every change
reruns the whole tree, since all files share one identifier session.

Stop with Ctrl-C.

Examples:
  codeshrink watch ./src --out ./compact`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOut, "out", "", "Output directory (required)")
	watchCmd.Flags().BoolVar(&watchNoCompact, "no-compact", false, "Copy text files through without compaction")
	watchCmd.Flags().StringVar(&watchScope, "scope", "", "Identifier session scope: document or project (default from config)")
	_ = watchCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := validScope(watchScope); err != nil {
		return err
	}
	source, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	out, err := filepath.Abs(watchOut)
	if err != nil {
		return err
	}
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return cserrors.New(cserrors.UnsupportedInput, "watch needs a directory: "+source, err)
	}

	a, err := newApp(cmd, slogutil.SubsystemWatch)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := ingest.LoadSettings(a.cfg, source)
	if err != nil {
		return cserrors.New(cserrors.ConfigInvalid, "invalid ingest settings", err)
	}
	filter, err := settings.Filter()
	if err != nil {
		return cserrors.New(cserrors.ConfigInvalid, "invalid ingest patterns", err)
	}

	svc, err := a.openServices()
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := svc.runner.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := ingest.Options{Source: source, Out: out, NoCompact: watchNoCompact, SessionScope: watchScope}
	idx, err := svc.ingester.Run(ctx, opts)
	if err != nil {
		return err
	}
	svc.writeMetrics(a)
	if err := printResponse(cmd, summarize(idx, out), string(FormatHuman)); err != nil {
		return err
	}

	w, err := watcher.New(source, watcher.Config{
		DebounceMs: a.cfg.Watch.DebounceMs,
		Skip:       []string{out},
	}, filter, a.logger, func(ctx context.Context, events []watcher.Event) {
		changed, removed := splitEvents(events)
		if _, err := svc.ingester.Update(ctx, opts, changed, removed); err != nil {
			a.logger.Error("Update failed", "error", err.Error())
			return
		}
		svc.writeMetrics(a)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	a.logger.Info("Watching for changes", "source", source, "out", out)
	<-ctx.Done()

	stats := w.Stats()
	a.logger.Info("Stopped watching",
		"directories", stats.Directories,
		"trackedFiles", stats.TrackedFiles,
		"events", stats.Emitted,
	)
	return w.Stop()
}

// splitEvents turns a debounced batch into changed and removed paths.
func splitEvents(events []watcher.Event) (changed, removed []string) {
	for _, ev := range events {
		if ev.Type == watcher.EventDelete {
			removed = append(removed, ev.Path)
		} else {
			changed = append(changed, ev.Path)
		}
	}
	return changed, removed
}
