package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codeshrink/internal/rename"
)

// SaveIdentifierMap replaces the stored identifier map of a session.
func (db *DB) SaveIdentifierMap(ctx context.Context, sess *rename.Session) error {
	mappings := sess.Mappings()
	scheme := sess.Generator().Scheme()
	now := time.Now().UTC().Format(time.RFC3339)

	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM identifier_maps WHERE session_id = ?", sess.ID); err != nil {
			return fmt.Errorf("failed to clear identifier map: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO identifier_maps (session_id, position, original, short, scheme, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for i, m := range mappings {
			if _, err := stmt.ExecContext(ctx, sess.ID, i, m.Original, m.Short, scheme, now); err != nil {
				return fmt.Errorf("failed to store mapping %s: %w", m.Original, err)
			}
		}

		db.logger.Debug("Stored identifier map", "session", sess.ID, "entries", len(mappings))
		return nil
	})
}

// LoadIdentifierMap returns the stored mappings of a session in issue order.
// An unknown session yields an empty slice.
func (db *DB) LoadIdentifierMap(ctx context.Context, sessionID string) ([]rename.Mapping, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT original, short
		FROM identifier_maps
		WHERE session_id = ?
		ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identifier map: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []rename.Mapping{}
	for rows.Next() {
		var m rename.Mapping
		if err := rows.Scan(&m.Original, &m.Short); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
