// Package cache provides the persistent SQLite classification cache.
//
// Rows are keyed by the versioned cache key and shared across all devices
// and requests; there is no per-device partitioning. Upserts fully overwrite
// a row, so concurrent writers need no read-modify-write locking — last
// write wins is correct here.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/larderhq/larder/internal/canon"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.larder/larder.db"

// maxBindVars keeps IN(...) clauses under SQLite's bound-parameter limit.
const maxBindVars = 500

// Stats holds observability counters for the cache.
type Stats struct {
	Rows      int64
	TotalHits int64
	ByStatus  map[string]int64
	DBPath    string
}

// TopRow is one frequently hit cache row.
type TopRow struct {
	Key           string
	CanonicalName string
	Status        string
	Hits          int64
}

// Store is the persistence interface the canonicalization service and the
// CLI maintenance commands consume.
type Store interface {
	canon.Store

	Stats(ctx context.Context) (*Stats, error)
	TopHits(ctx context.Context, limit int) ([]TopRow, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeOtherVersions(ctx context.Context, keepVersion string) (int64, error)
	Close() error
}

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// NewStore opens (creating if needed) the cache database.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetMany returns the cached results for the given keys. Absent keys are
// simply missing from the map, never an error.
func (s *SQLiteStore) GetMany(ctx context.Context, keys []string) (map[string]canon.Result, error) {
	out := make(map[string]canon.Result, len(keys))
	for start := 0; start < len(keys); start += maxBindVars {
		end := start + maxBindVars
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.getChunk(ctx, keys[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) getChunk(ctx context.Context, keys []string, out map[string]canon.Result) error {
	if len(keys) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, canonical_name, status, kind, ingredient_type, confidence, source, updated_at
		 FROM canon_cache WHERE key IN (`+placeholders(len(keys))+`)`,
		bindStrings(keys)...,
	)
	if err != nil {
		return fmt.Errorf("querying cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r canon.Result
		var status, kind, ingredientType, source string
		if err := rows.Scan(&r.Key, &r.CanonicalName, &status, &kind, &ingredientType,
			&r.Confidence, &source, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scanning cache row: %w", err)
		}
		r.Status = canon.Status(status)
		r.Kind = canon.Kind(kind)
		r.IngredientType = canon.IngredientType(ingredientType)
		r.Confidence = canon.ClampConfidence(r.Confidence)
		r.Source = canon.ResultSource(source)
		out[r.Key] = r
	}
	return rows.Err()
}

// UpsertMany writes rows inside one transaction. Idempotent per key: every
// classification field is overwritten and updated_at refreshed; hits are
// preserved across overwrites.
func (s *SQLiteStore) UpsertMany(ctx context.Context, results []canon.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO canon_cache (key, canonical_name, status, kind, ingredient_type, confidence, source, updated_at, hits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(key) DO UPDATE SET
		   canonical_name  = excluded.canonical_name,
		   status          = excluded.status,
		   kind            = excluded.kind,
		   ingredient_type = excluded.ingredient_type,
		   confidence      = excluded.confidence,
		   source          = excluded.source,
		   updated_at      = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range results {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, r.Key, r.CanonicalName, string(r.Status),
			string(r.Kind), string(r.IngredientType), canon.ClampConfidence(r.Confidence),
			string(r.Source), updatedAt); err != nil {
			return fmt.Errorf("upserting %q: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

// BumpHits increments the hit counter for the given keys. Best-effort:
// callers are expected to swallow the error, and increments lost to races
// are tolerated.
func (s *SQLiteStore) BumpHits(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxBindVars {
		end := start + maxBindVars
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		if len(chunk) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE canon_cache SET hits = hits + 1 WHERE key IN (`+placeholders(len(chunk))+`)`,
			bindStrings(chunk)...,
		); err != nil {
			return fmt.Errorf("bumping hits: %w", err)
		}
	}
	return nil
}

// Stats reports row and hit counts for observability.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: map[string]int64{}, DBPath: s.dbPath}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM canon_cache`,
	).Scan(&st.Rows, &st.TotalHits)
	if err != nil {
		return nil, fmt.Errorf("counting cache rows: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM canon_cache GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		st.ByStatus[status] = n
	}
	return st, rows.Err()
}

// TopHits returns the most frequently hit rows, hit count descending.
func (s *SQLiteStore) TopHits(ctx context.Context, limit int) ([]TopRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, canonical_name, status, hits FROM canon_cache
		 ORDER BY hits DESC, key ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top hits: %w", err)
	}
	defer rows.Close()

	var out []TopRow
	for rows.Next() {
		var r TopRow
		if err := rows.Scan(&r.Key, &r.CanonicalName, &r.Status, &r.Hits); err != nil {
			return nil, fmt.Errorf("scanning top hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeBefore deletes rows last updated before cutoff, returning the count.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM canon_cache WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging old rows: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOtherVersions deletes rows whose key carries a different pipeline
// version prefix. Stale-version rows are unreachable (key lookups always use
// the current version), so this only reclaims space.
func (s *SQLiteStore) PurgeOtherVersions(ctx context.Context, keepVersion string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM canon_cache WHERE key NOT LIKE ?`, keepVersion+":%")
	if err != nil {
		return 0, fmt.Errorf("purging versions: %w", err)
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func bindStrings(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
