// Package unitstore caches compiled units in SQLite, keyed by unit name
// and by the SHA-256 of their wire encoding.
package unitstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/vm"
)

var log = commonlog.GetLogger("octvm.store")

// ErrNotFound indicates the requested unit isn't cached.
var ErrNotFound = errors.New("unit not found")

// ErrAmbiguous indicates a hash prefix matches more than one unit.
var ErrAmbiguous = errors.New("ambiguous hash prefix")

// Memory is the path of a private in-memory store.
const Memory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS units (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	file    TEXT NOT NULL DEFAULT '',
	hash    TEXT NOT NULL UNIQUE,
	data    BLOB NOT NULL,
	seq     INTEGER NOT NULL,
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS units_by_name ON units (name, seq);
`

// Entry describes one cached unit version.
type Entry struct {
	ID      uuid.UUID
	Name    string
	File    string
	Hash    string // hex SHA-256 of the wire encoding
	Size    int
	Created time.Time
	seq     int64
}

// Store is a SQLite-backed unit cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path. Parent directories are
// created as needed; Memory opens a private in-memory store.
func Open(path string) (*Store, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == Memory {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened unit store %s", path)
	return &Store{db: db, path: path}, nil
}

// DefaultPath is $OCTVM_CACHE, or units.db under the user cache
// directory.
func DefaultPath() (string, error) {
	if p := os.Getenv("OCTVM_CACHE"); p != "" {
		return p, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("getting cache dir: %w", err)
	}
	return filepath.Join(dir, "octvm", "units.db"), nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores u and makes it the latest version of its name. Storing a
// unit that is already cached only promotes it.
func (s *Store) Put(u *bytecode.Unit) (Entry, error) {
	data, err := bytecode.MarshalUnit(u)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding unit %s: %w", u.Name, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Entry{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM units").Scan(&seq); err != nil {
		return Entry{}, fmt.Errorf("allocating sequence: %w", err)
	}

	e := Entry{Name: u.Name, File: u.File, Hash: hash, Size: len(data), seq: seq}
	var id string
	var created int64
	err = tx.QueryRow("SELECT id, created FROM units WHERE hash = ?", hash).Scan(&id, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e.ID = uuid.New()
		e.Created = time.Now()
		_, err = tx.Exec(
			"INSERT INTO units (id, name, file, hash, data, seq, created) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.ID.String(), e.Name, e.File, hash, data, seq, e.Created.UnixNano(),
		)
		if err != nil {
			return Entry{}, fmt.Errorf("saving unit %s: %w", u.Name, err)
		}
		log.Debugf("stored %s %s", u.Name, hash[:12])
	case err != nil:
		return Entry{}, fmt.Errorf("querying unit: %w", err)
	default:
		if e.ID, err = uuid.Parse(id); err != nil {
			return Entry{}, fmt.Errorf("bad id %q: %w", id, err)
		}
		e.Created = time.Unix(0, created)
		if _, err := tx.Exec("UPDATE units SET seq = ? WHERE id = ?", seq, id); err != nil {
			return Entry{}, fmt.Errorf("promoting unit %s: %w", u.Name, err)
		}
		log.Debugf("promoted %s %s", u.Name, hash[:12])
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing: %w", err)
	}
	return e, nil
}

const entryColumns = "id, name, file, hash, length(data), seq, created"

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var id string
	var created int64
	if err := row.Scan(&id, &e.Name, &e.File, &e.Hash, &e.Size, &e.seq, &created); err != nil {
		return Entry{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("bad id %q: %w", id, err)
	}
	e.ID = parsed
	e.Created = time.Unix(0, created)
	return e, nil
}

// Get returns the latest version of the named unit.
func (s *Store) Get(name string) (*bytecode.Unit, Entry, error) {
	return s.load("WHERE name = ? ORDER BY seq DESC LIMIT 1", name)
}

// GetByHash returns the unit whose hash is hash or starts with it. A
// prefix must be at least 4 hex digits.
func (s *Store) GetByHash(hash string) (*bytecode.Unit, Entry, error) {
	hash = strings.ToLower(hash)
	if len(hash) < 4 {
		return nil, Entry{}, fmt.Errorf("hash prefix %q too short", hash)
	}
	if _, err := hex.DecodeString(hash[:len(hash)&^1]); err != nil {
		return nil, Entry{}, fmt.Errorf("bad hash %q", hash)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM units WHERE hash LIKE ? || '%'", hash).Scan(&n); err != nil {
		return nil, Entry{}, fmt.Errorf("querying unit: %w", err)
	}
	if n > 1 {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrAmbiguous, hash)
	}
	return s.load("WHERE hash LIKE ? || '%'", hash)
}

func (s *Store) load(where string, arg string) (*bytecode.Unit, Entry, error) {
	row := s.db.QueryRow("SELECT "+entryColumns+", data FROM units "+where, arg)
	var e Entry
	var id string
	var created int64
	var data []byte
	err := row.Scan(&id, &e.Name, &e.File, &e.Hash, &e.Size, &e.seq, &created, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, arg)
	}
	if err != nil {
		return nil, Entry{}, fmt.Errorf("querying unit: %w", err)
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, Entry{}, fmt.Errorf("bad id %q: %w", id, err)
	}
	e.Created = time.Unix(0, created)

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != e.Hash {
		return nil, Entry{}, fmt.Errorf("unit %s: cached data does not match hash %s", e.Name, e.Hash[:12])
	}
	u, err := bytecode.UnmarshalUnit(data)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("decoding unit %s: %w", e.Name, err)
	}
	return u, e, nil
}

// List returns every cached version, by name and newest first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT " + entryColumns + " FROM units ORDER BY name, seq DESC")
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("listing units: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes every version of the named unit and returns how many
// were removed.
func (s *Store) Delete(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM units WHERE name = ?", name)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Prune keeps the newest keep versions of each name and removes the rest.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune: keep must be at least 1, got %d", keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM units WHERE seq NOT IN (
		SELECT v.seq FROM units v WHERE v.name = units.name ORDER BY v.seq DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Infof("pruned %d unit versions", n)
	}
	return int(n), nil
}

// LoadInto registers the latest version of every cached unit with r and
// returns their names.
func (s *Store) LoadInto(r *vm.Registry) ([]string, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if len(names) > 0 && names[len(names)-1] == e.Name {
			continue
		}
		u, _, err := s.GetByHash(e.Hash)
		if err != nil {
			return nil, err
		}
		r.RegisterUnit(u)
		names = append(names, e.Name)
	}
	return names, nil
}
