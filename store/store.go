// Package store keeps compiled program images in a SQLite database so that
// linking can resolve modules by name.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/juno-r1/sophia-sub000/code"
)

// ErrModuleNotFound indicates the requested module isn't stored.
var ErrModuleNotFound = errors.New("module not found")

// Entry describes one stored module.
type Entry struct {
	Name    string
	Size    int
	Updated time.Time
}

// Store is a module store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  commonlog.Logger
}

// Open opens (creating if needed) the module store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
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

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		updated INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path, log: commonlog.GetLogger("sophia.store")}, nil
}

// DefaultPath returns the store location used when none is configured:
// $SOPHIA_STORE, or ~/.sophia/modules.db.
func DefaultPath() (string, error) {
	if p := os.Getenv("SOPHIA_STORE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".sophia", "modules.db"), nil
}

// Path returns the database file.
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

// Put stores prog under name, replacing any previous image.
func (s *Store) Put(ctx context.Context, name string, prog *code.Program) error {
	image, err := code.Marshal(prog)
	if err != nil {
		return fmt.Errorf("encoding module %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO modules (name, image, updated) VALUES (?, ?, ?)",
		name, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving module %s: %w", name, err)
	}
	s.log.Debugf("stored module %s (%d bytes)", name, len(image))
	return nil
}

// Get loads the module stored under name.
func (s *Store) Get(ctx context.Context, name string) (*code.Program, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, "SELECT image FROM modules WHERE name = ?", name).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module %s: %w", name, err)
	}
	prog, err := code.Unmarshal(image)
	if err != nil {
		return nil, fmt.Errorf("decoding module %s: %w", name, err)
	}
	return prog, nil
}

// List returns every stored module ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, length(image), updated FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Name, &e.Size, &updated); err != nil {
			return nil, fmt.Errorf("scanning module row: %w", err)
		}
		e.Updated = time.Unix(updated, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the module stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM modules WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting module %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrModuleNotFound
	}
	return nil
}
