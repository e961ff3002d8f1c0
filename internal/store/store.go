// Package store persists the host inventory and survey run records.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store provides access to all storage repositories.
type Store struct {
	db      *sql.DB
	hosts   *HostStore
	surveys *SurveyStore
}

// NewDB opens the SQLite database at path, ":memory:" included. The pool is
// capped at one connection: with the pure-Go driver every connection to
// ":memory:" would otherwise get its own empty database.
func NewDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	return db, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		hosts:   NewHostStore(db),
		surveys: NewSurveyStore(db),
	}
}

func (s *Store) Host() *HostStore {
	return s.hosts
}

func (s *Store) Survey() *SurveyStore {
	return s.surveys
}

func (s *Store) Close() error {
	return s.db.Close()
}
