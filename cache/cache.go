// Package cache stores compiled artifacts in a SQLite database, keyed by a
// content hash of the program tree and the compiler settings.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/wayuto/alum/compiler/hash"
	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/bytecode"
)

var log = commonlog.GetLogger("alum.cache")

// Options are the compiler settings that change the compiled output.
type Options struct {
	Optimize bool
	Strict   bool
}

// Key returns the cache key for a parsed program. It must be computed
// before the optimizer runs, since optimizing rewrites the tree in place.
func Key(prog *ast.Program, opts Options) string {
	salt := fmt.Sprintf("artifact=%d optimize=%t strict=%t", bytecode.ArtifactVersion, opts.Optimize, opts.Strict)
	return hash.HexHash(prog, salt)
}

// Store is a persistent artifact cache.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens the cache database at path, creating it and its directory
// if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get looks up an artifact. A miss returns (nil, false, nil). Entries that
// no longer decode, for example ones written by a newer toolchain, are
// reported as misses so the next Put replaces them.
func (s *Store) Get(key string) (*bytecode.Artifact, bool, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM artifacts WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", key)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying artifact: %w", err)
	}

	a, err := bytecode.UnmarshalArtifact(data)
	if err != nil {
		log.Warningf("ignoring cache entry %s: %s", key, err)
		return nil, false, nil
	}
	log.Debugf("hit %s", key)
	return a, true, nil
}

// Put stores an artifact, replacing any existing entry for key.
func (s *Store) Put(key string, a *bytecode.Artifact) error {
	data, err := bytecode.MarshalArtifact(a)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO artifacts (key, data, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving artifact: %w", err)
	}
	return nil
}

// Len returns the number of cached artifacts.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, nil
}
