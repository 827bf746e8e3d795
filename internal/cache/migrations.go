package cache

import "fmt"

// migrate creates the cache schema if it does not exist. The enum CHECK
// constraints mirror the closed sets in the canon package, so a buggy writer
// cannot smuggle an out-of-range value into durable state.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS canon_cache (
			key             TEXT PRIMARY KEY,
			canonical_name  TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL CHECK (status IN ('item', 'not_item', 'unknown')),
			kind            TEXT NOT NULL CHECK (kind IN ('food', 'household', 'other')),
			ingredient_type TEXT NOT NULL CHECK (ingredient_type IN ('ingredient', 'product', 'ambiguous')),
			confidence      REAL NOT NULL DEFAULT 0,
			source          TEXT NOT NULL DEFAULT 'llm',
			updated_at      TIMESTAMP NOT NULL,
			hits            BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canon_cache_updated_at ON canon_cache(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_canon_cache_hits ON canon_cache(hits DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
