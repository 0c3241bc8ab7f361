package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/duckdb/migrate"
)

// Store manages the DuckDB database holding the canonical event stream.
// With an empty dbPath the database lives in memory; with a path it doubles
// as the on-disk analytics cache, and its file modification time drives the
// loader's cache-invalidation rule.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	logger       *zap.Logger
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates the event database at dbPath.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, logger *zap.Logger, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		db:           db,
		logger:       logger,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk database path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.dbPath
}

// CacheFresh reports whether the on-disk database can serve as a cache for
// raw sources last modified at rawMtime. The sole invalidation rule is
// file-mtime based: the cache is valid only while its mtime is at least the
// mtime of the most recently modified raw source file.
func (s *Store) CacheFresh(rawMtime time.Time) bool {
	if s.dbPath == "" {
		return false
	}
	info, err := os.Stat(s.dbPath)
	if err != nil {
		return false
	}
	return !info.ModTime().Before(rawMtime)
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
