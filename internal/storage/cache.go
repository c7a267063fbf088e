package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"codeshrink/internal/compaction"
	"codeshrink/internal/syntax"
)

// DefaultTTL is used when NewArtifactCache gets a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Key derives the cache key of a compaction input. Inputs that differ in
// language, engine options or text never share a key, and neither do builds
// with and without the tree-sitter parser.
func Key(lang syntax.Language, fingerprint, text string) string {
	return parserKey(lang, syntax.IsAvailable(), fingerprint, text)
}

func parserKey(lang syntax.Language, parser bool, fingerprint, text string) string {
	d := xxhash.New()
	_, _ = d.WriteString(string(lang))
	_, _ = d.Write([]byte{0})
	if parser {
		_, _ = d.WriteString("ts")
	}
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(fingerprint)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(text)
	return fmt.Sprintf("%016x-%x", d.Sum64(), len(text))
}

// ArtifactCache stores compaction results so unchanged files are not
// recompacted. Values are JSON compressed with zstd.
type ArtifactCache struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// NewArtifactCache creates a cache over db.
func NewArtifactCache(db *DB, ttl time.Duration) *ArtifactCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ArtifactCache{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached result for key. Expired entries are deleted and
// reported as a miss.
func (c *ArtifactCache) Get(ctx context.Context, key string) (*compaction.Result, bool, error) {
	var blob []byte
	var expiresAt string

	err := c.db.conn.QueryRowContext(ctx, `
		SELECT result_blob, expires_at
		FROM artifacts
		WHERE key = ?
	`, key).Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("artifact cache lookup failed: %w", err)
	}

	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("invalid expires_at format: %w", err)
	}
	if c.now().After(expires) {
		_, _ = c.db.conn.ExecContext(ctx, "DELETE FROM artifacts WHERE key = ?", key)
		return nil, false, nil
	}

	raw, err := decompress(blob)
	if err != nil {
		return nil, false, err
	}
	var res compaction.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("invalid cached result: %w", err)
	}

	_, _ = c.db.conn.ExecContext(ctx, "UPDATE artifacts SET hits = hits + 1 WHERE key = ?", key)
	return &res, true, nil
}

// Put stores res under key. Results with fail-open stages are not stored:
// the failure may be transient and a later run can do better.
func (c *ArtifactCache) Put(ctx context.Context, key string, lang syntax.Language, fingerprint string, res *compaction.Result) error {
	if len(res.FailOpen) > 0 {
		c.db.logger.Debug("Not caching degraded artifact", "key", key, "failOpen", res.FailOpen)
		return nil
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	blob := compress(raw)

	now := c.now().UTC()
	_, err = c.db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO artifacts
			(key, language, fingerprint, original_chars, compacted_chars, raw_bytes, result_blob, hits, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, key, string(lang), fingerprint,
		res.Report.OriginalChars, res.Report.CompactedChars, len(raw), blob,
		now.Format(time.RFC3339), now.Add(c.ttl).Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	c.db.logger.Debug("Cached artifact",
		"key", key,
		"language", lang,
		"raw_bytes", len(raw),
		"stored_bytes", len(blob),
	)
	return nil
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	Entries        int   `json:"entries" yaml:"entries" toml:"entries"`
	Expired        int   `json:"expired" yaml:"expired" toml:"expired"`
	Hits           int64 `json:"hits" yaml:"hits" toml:"hits"`
	RawBytes       int64 `json:"rawBytes" yaml:"rawBytes" toml:"rawBytes"`
	StoredBytes    int64 `json:"storedBytes" yaml:"storedBytes" toml:"storedBytes"`
	OriginalChars  int64 `json:"originalChars" yaml:"originalChars" toml:"originalChars"`
	CompactedChars int64 `json:"compactedChars" yaml:"compactedChars" toml:"compactedChars"`
	Sessions       int   `json:"sessions" yaml:"sessions" toml:"sessions"`
	Identifiers    int   `json:"identifiers" yaml:"identifiers" toml:"identifiers"`
}

// Stats returns statistics about cache usage.
func (c *ArtifactCache) Stats(ctx context.Context) (*CacheStats, error) {
	var s CacheStats
	err := c.db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(hits), 0),
			COALESCE(SUM(raw_bytes), 0),
			COALESCE(SUM(LENGTH(result_blob)), 0),
			COALESCE(SUM(original_chars), 0),
			COALESCE(SUM(compacted_chars), 0)
		FROM artifacts
	`).Scan(&s.Entries, &s.Hits, &s.RawBytes, &s.StoredBytes, &s.OriginalChars, &s.CompactedChars)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	now := c.now().UTC().Format(time.RFC3339)
	if err := c.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM artifacts WHERE expires_at < ?", now,
	).Scan(&s.Expired); err != nil {
		return nil, fmt.Errorf("failed to count expired entries: %w", err)
	}

	if err := c.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT session_id), COUNT(*) FROM identifier_maps",
	).Scan(&s.Sessions, &s.Identifiers); err != nil {
		return nil, fmt.Errorf("failed to get identifier map stats: %w", err)
	}
	return &s, nil
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *ArtifactCache) CleanupExpired(ctx context.Context) (int64, error) {
	now := c.now().UTC().Format(time.RFC3339)
	res, err := c.db.conn.ExecContext(ctx, "DELETE FROM artifacts WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup artifacts: %w", err)
	}
	n, _ := res.RowsAffected()
	c.db.logger.Debug("Cleaned up expired artifacts", "removed", n)
	return n, nil
}

// Clear removes every artifact and identifier map.
func (c *ArtifactCache) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := c.db.WithTx(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM artifacts")
		if err != nil {
			return fmt.Errorf("failed to clear artifacts: %w", err)
		}
		removed, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, "DELETE FROM identifier_maps"); err != nil {
			return fmt.Errorf("failed to clear identifier maps: %w", err)
		}
		return nil
	})
	return removed, err
}
