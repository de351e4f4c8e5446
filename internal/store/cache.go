// Package store persists the repository stats cache between runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/jsonfile"
)

// CacheStore loads and saves the whole cache at once.
type CacheStore interface {
	// Load returns the stored cache. A store that does not exist yet yields an empty cache.
	Load(ctx context.Context) (domain.Cache, error)
	Save(ctx context.Context, cache domain.Cache) error
	Close() error
}

// OpenCacheStore picks the backend from the file extension: .db and .sqlite select SQLite,
// anything else is a JSON file.
func OpenCacheStore(path string) (CacheStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLiteCacheStore(path)
	default:
		return NewJSONCacheStore(path), nil
	}
}

// JSONCacheStore keeps the cache as a single JSON object indented by two spaces.
type JSONCacheStore struct {
	path string
}

// NewJSONCacheStore returns a store for the JSON file at path.
func NewJSONCacheStore(path string) *JSONCacheStore {
	return &JSONCacheStore{path: path}
}

// Load reads the cache file. A missing file is an empty cache.
func (s *JSONCacheStore) Load(_ context.Context) (domain.Cache, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Cache{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %s: %w", s.path, err)
	}
	cache := domain.Cache{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file %s: %w", s.path, err)
	}
	return cache, nil
}

// Save replaces the cache file atomically.
func (s *JSONCacheStore) Save(_ context.Context, cache domain.Cache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return jsonfile.WriteAtomic(s.path, append(data, '\n'))
}

// Close is a no-op; the file is not held open.
func (s *JSONCacheStore) Close() error { return nil }
