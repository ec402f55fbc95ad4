// Package signature provides the digest-to-threat-name lookup table used by
// the signature detector. The table is loaded once at session start and is
// read-only for the session's lifetime.
package signature

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

// Store resolves a hex digest (MD5 or SHA256) to a threat name.
type Store interface {
	// Lookup returns the threat name for a digest, if known.
	Lookup(digest string) (threat string, ok bool)

	Close() error
}

var ErrStoreNotFound = errors.New("signature database not found")

// builtinSignatures seeds the default store with a small sample set.
var builtinSignatures = map[string]string{
	// MD5 digests of known malware samples
	"44d88612fea8a8f36de82e1278abb02f": "Trojan.Generic",
	"81891b0d3cbb89c1e044b8c5c504c83a": "Worm.Win32",
	"e6d290a03b70cfa5d4451da444bdea39": "Ransomware.Crypto",
}

// MemoryStore is an immutable in-memory digest table.
type MemoryStore struct {
	entries map[string]string
}

var _ Store = &MemoryStore{}

// NewMemoryStore copies entries into a store; digests are normalized to
// lower-case hex.
func NewMemoryStore(entries map[string]string) *MemoryStore {
	m := make(map[string]string, len(entries))
	for digest, threat := range entries {
		m[strings.ToLower(digest)] = threat
	}
	return &MemoryStore{entries: m}
}

// DefaultStore returns a store seeded with the built-in sample signatures.
func DefaultStore() *MemoryStore {
	return NewMemoryStore(builtinSignatures)
}

func (s *MemoryStore) Lookup(digest string) (string, bool) {
	threat, ok := s.entries[strings.ToLower(digest)]
	return threat, ok
}

func (s *MemoryStore) Close() error { return nil }

// Len reports how many signatures the store holds.
func (s *MemoryStore) Len() int { return len(s.entries) }

const createTable = `CREATE TABLE IF NOT EXISTS signatures (
	digest TEXT PRIMARY KEY,
	threat TEXT NOT NULL);`

// OpenSQLite loads every signature row from a SQLite database into memory
// and closes nothing until Close is called. An empty location opens an
// in-memory database seeded with the built-in sample set.
func OpenSQLite(location string) (s *SQLiteStore, err error) {
	seed := false
	if location == "" {
		location = "file::memory:"
		seed = true
	} else if _, statErr := os.Stat(location); errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, location)
	}
	db, err := sql.Open("sqlite", location)
	if err != nil {
		return
	}
	if _, err = db.Exec(createTable); err != nil {
		return
	}
	s = &SQLiteStore{db: db}
	if seed {
		if err = s.Add(builtinSignatures); err != nil {
			return
		}
	}
	if err = s.load(); err != nil {
		return
	}
	logger.Info("signature database loaded", slog.String("location", location), slog.Int("signatures", len(s.entries)))
	return
}

// SQLiteStore keeps the signature table in a SQLite database and serves
// lookups from an in-memory copy loaded at open time.
type SQLiteStore struct {
	db      *sql.DB
	entries map[string]string
}

var _ Store = &SQLiteStore{}

func (s *SQLiteStore) load() (err error) {
	rows, err := s.db.Query("SELECT digest, threat FROM signatures")
	if err != nil {
		return
	}
	defer rows.Close()
	s.entries = make(map[string]string)
	for rows.Next() {
		var digest, threat string
		if err = rows.Scan(&digest, &threat); err != nil {
			return
		}
		s.entries[strings.ToLower(digest)] = threat
	}
	return rows.Err()
}

// Add inserts or replaces signatures and refreshes the in-memory table.
// It is meant for provisioning, not for use during a running session.
func (s *SQLiteStore) Add(entries map[string]string) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	for digest, threat := range entries {
		if _, err = tx.Exec("INSERT OR REPLACE INTO signatures (digest, threat) VALUES ($1, $2)",
			strings.ToLower(digest), threat); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Warn("could not rollback signature insert", slog.String("error", rbErr.Error()))
			}
			return
		}
	}
	if err = tx.Commit(); err != nil {
		return
	}
	return s.load()
}

func (s *SQLiteStore) Lookup(digest string) (string, bool) {
	threat, ok := s.entries[strings.ToLower(digest)]
	return threat, ok
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
