package main

import (
	"time"

	"github.com/spf13/cobra"

	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/slogutil"
	"codeshrink/internal/storage"
)

var (
	cacheFormat      string
	cacheExpiredOnly bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the artifact cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show artifact cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached artifacts",
	Long: `Delete cached artifacts and identifier maps.

Examples:
  codeshrink cache clear
  codeshrink cache clear --expired`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheFormat, "format", "human", "Output format (human, json, yaml, toml)")
	cacheClearCmd.Flags().BoolVar(&cacheExpiredOnly, "expired", false, "Only delete expired entries")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache(a *app) (*storage.DB, *storage.ArtifactCache, error) {
	db, err := storage.Open(a.root, a.logger)
	if err != nil {
		return nil, nil, cserrors.New(cserrors.StorageError, "failed to open cache database", err)
	}
	return db, storage.NewArtifactCache(db, time.Duration(a.cfg.Cache.TtlSeconds)*time.Second), nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, slogutil.SubsystemCompact)
	if err != nil {
		return err
	}
	defer a.Close()

	db, cache, err := openCache(a)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stats, err := cache.Stats(cmd.Context())
	if err != nil {
		return cserrors.New(cserrors.StorageError, "failed to read cache stats", err)
	}
	return printResponse(cmd, stats, cacheFormat)
}

// CacheClearResponse reports how many entries were removed.
type CacheClearResponse struct {
	Removed     int64 `json:"removed" yaml:"removed" toml:"removed"`
	ExpiredOnly bool  `json:"expiredOnly" yaml:"expiredOnly" toml:"expiredOnly"`
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, slogutil.SubsystemCompact)
	if err != nil {
		return err
	}
	defer a.Close()

	db, cache, err := openCache(a)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var n int64
	if cacheExpiredOnly {
		n, err = cache.CleanupExpired(cmd.Context())
	} else {
		n, err = cache.Clear(cmd.Context())
	}
	if err != nil {
		return cserrors.New(cserrors.StorageError, "failed to clear cache", err)
	}
	a.logger.Info("Cache cleared", "removed", n, "expiredOnly", cacheExpiredOnly)
	return printResponse(cmd, &CacheClearResponse{Removed: n, ExpiredOnly: cacheExpiredOnly}, cacheFormat)
}
