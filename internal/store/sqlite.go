package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/naka-gawa/collection-stats/internal/domain"
)

// SQLiteCacheStore keeps the cache in a single table of a SQLite database.
type SQLiteCacheStore struct {
	db *sql.DB
}

// OpenSQLiteCacheStore opens the database at path and creates the table if needed.
func OpenSQLiteCacheStore(path string) (*SQLiteCacheStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteCacheStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteCacheStore) Close() error { return s.db.Close() }

func (s *SQLiteCacheStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS repo_cache (
		repo_key TEXT PRIMARY KEY,
		stars INTEGER,
		last_contributed TEXT,
		etag TEXT,
		updated_at TEXT
	)`)
	if err != nil {
		return fmt.Errorf("exec migrate: %w", err)
	}

	// Databases created before conditional requests lack the etag column.
	var hasETag int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('repo_cache') WHERE name = 'etag'`).Scan(&hasETag); err != nil {
		return fmt.Errorf("inspect repo_cache: %w", err)
	}
	if hasETag == 0 {
		if _, err := s.db.Exec(`ALTER TABLE repo_cache ADD COLUMN etag TEXT`); err != nil {
			return fmt.Errorf("add etag column: %w", err)
		}
	}
	return nil
}

// Load reads every cached repository.
func (s *SQLiteCacheStore) Load(ctx context.Context) (domain.Cache, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT repo_key, stars, last_contributed, etag, updated_at FROM repo_cache`)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	cache := domain.Cache{}
	for rows.Next() {
		var (
			key       string
			stars     sql.NullInt64
			last      sql.NullString
			etag      sql.NullString
			updatedAt sql.NullString
		)
		if err := rows.Scan(&key, &stars, &last, &etag, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		var rec domain.CacheRecord
		if stars.Valid {
			n := int(stars.Int64)
			rec.Stars = &n
		}
		if last.Valid {
			rec.LastContributed = &last.String
		}
		rec.ETag = etag.String
		rec.UpdatedAt = updatedAt.String
		cache[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache rows: %w", err)
	}
	return cache, nil
}

// Save replaces the table contents with cache in one transaction.
func (s *SQLiteCacheStore) Save(ctx context.Context, cache domain.Cache) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM repo_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO repo_cache (repo_key, stars, last_contributed, etag, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, rec := range cache {
		var stars any
		if rec.Stars != nil {
			stars = *rec.Stars
		}
		var last any
		if rec.LastContributed != nil {
			last = *rec.LastContributed
		}
		if _, err := stmt.ExecContext(ctx, key, stars, last, rec.ETag, rec.UpdatedAt); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
