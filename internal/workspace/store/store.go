// Package store persists the declaration index of a workspace in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FileRecord describes the indexed state of one file.
type FileRecord struct {
	Path      string
	Language  string
	Hash      uint64
	IndexedAt time.Time
}

// Declaration is one indexed symbol.
type Declaration struct {
	Path       string
	Name       string
	Kind       protocol.SymbolKind
	Container  string
	TypeName   string
	Supertypes []string
	Range      protocol.Range
}

// Store implements the declaration index on a SQLite database.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens (or creates) the database at path, enables WAL mode and
// migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// withTx runs fn within a transaction.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Replace stores file and swaps its declarations for decls.
func (s *Store) Replace(file FileRecord, decls []Declaration) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
            INSERT INTO files (path, language, hash, indexed_at) VALUES (?, ?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET
                language = excluded.language,
                hash = excluded.hash,
                indexed_at = excluded.indexed_at
        `, file.Path, file.Language, int64(file.Hash), file.IndexedAt.Unix()); err != nil {
			return fmt.Errorf("upsert file %s: %w", file.Path, err)
		}
		if err := deleteDeclarations(tx, file.Path); err != nil {
			return err
		}

		for _, d := range decls {
			res, err := tx.Exec(`
                INSERT INTO declarations
                    (path, name, kind, container, type_name, start_line, start_char, end_line, end_char)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            `, file.Path, d.Name, int(d.Kind), d.Container, d.TypeName,
				d.Range.Start.Line, d.Range.Start.Character, d.Range.End.Line, d.Range.End.Character)
			if err != nil {
				return fmt.Errorf("insert declaration %s: %w", d.Name, err)
			}
			if len(d.Supertypes) == 0 {
				continue
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, super := range d.Supertypes {
				if _, err := tx.Exec(`INSERT OR IGNORE INTO supertypes (declaration_id, name) VALUES (?, ?)`, id, super); err != nil {
					return fmt.Errorf("insert supertype %s: %w", super, err)
				}
			}
		}
		return nil
	})
}

func deleteDeclarations(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`
        DELETE FROM supertypes WHERE declaration_id IN
            (SELECT id FROM declarations WHERE path = ?)
    `, path); err != nil {
		return fmt.Errorf("delete supertypes of %s: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM declarations WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete declarations of %s: %w", path, err)
	}
	return nil
}

// Delete removes a file and its declarations.
func (s *Store) Delete(path string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := deleteDeclarations(tx, path); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path)
		return err
	})
}

// File returns the record of path, or ErrNotFound.
func (s *Store) File(path string) (FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return FileRecord{}, ErrClosed
	}

	var rec FileRecord
	var hash, ts int64
	err := s.db.QueryRow(`SELECT path, language, hash, indexed_at FROM files WHERE path = ?`, path).
		Scan(&rec.Path, &rec.Language, &hash, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return FileRecord{}, err
	}
	rec.Hash = uint64(hash)
	rec.IndexedAt = time.Unix(ts, 0)
	return rec, nil
}

// Paths lists every indexed file.
func (s *Store) Paths() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

const selectDeclarations = `
    SELECT d.path, d.name, d.kind, d.container, d.type_name,
           d.start_line, d.start_char, d.end_line, d.end_char,
           COALESCE((SELECT group_concat(s.name, ' ') FROM supertypes s WHERE s.declaration_id = d.id), '')
    FROM declarations d`

// getDeclarations is a helper to run a declaration query.
func (s *Store) getDeclarations(query string, args ...any) ([]Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(selectDeclarations+" "+query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decls []Declaration
	for rows.Next() {
		var d Declaration
		var kind int
		var supers string
		if err := rows.Scan(&d.Path, &d.Name, &kind, &d.Container, &d.TypeName,
			&d.Range.Start.Line, &d.Range.Start.Character, &d.Range.End.Line, &d.Range.End.Character,
			&supers); err != nil {
			return nil, err
		}
		d.Kind = protocol.SymbolKind(kind)
		d.Supertypes = strings.Fields(supers)
		decls = append(decls, d)
	}
	return decls, rows.Err()
}

// Search finds declarations whose name contains query, ignoring ASCII
// case. Prefix matches and shorter names come first. A limit below one
// means no limit.
func (s *Store) Search(query string, limit int) ([]Declaration, error) {
	if limit < 1 {
		limit = -1
	}
	pattern := escapeLike(query)
	return s.getDeclarations(`
        WHERE d.name LIKE ? ESCAPE '\'
        ORDER BY d.name LIKE ? ESCAPE '\' DESC, length(d.name), d.name, d.path
        LIMIT ?
    `, "%"+pattern+"%", pattern+"%", limit)
}

// ByName returns the declarations called name, optionally limited to
// kinds.
func (s *Store) ByName(name string, kinds ...protocol.SymbolKind) ([]Declaration, error) {
	decls, err := s.getDeclarations(`WHERE d.name = ? ORDER BY d.path, d.start_line`, name)
	if err != nil {
		return nil, err
	}
	return filterKinds(decls, kinds), nil
}

// Members returns the declarations contained in container.
func (s *Store) Members(container string, kinds ...protocol.SymbolKind) ([]Declaration, error) {
	decls, err := s.getDeclarations(`WHERE d.container = ? ORDER BY d.name, d.path`, container)
	if err != nil {
		return nil, err
	}
	return filterKinds(decls, kinds), nil
}

// Subtypes returns the declarations naming super in their extends or
// implements clauses.
func (s *Store) Subtypes(super string) ([]Declaration, error) {
	return s.getDeclarations(`
        WHERE d.id IN (SELECT declaration_id FROM supertypes WHERE name = ?)
        ORDER BY d.path, d.start_line
    `, super)
}

// InFile returns the declarations of path in source order.
func (s *Store) InFile(path string) ([]Declaration, error) {
	return s.getDeclarations(`WHERE d.path = ? ORDER BY d.start_line, d.start_char`, path)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func filterKinds(decls []Declaration, kinds []protocol.SymbolKind) []Declaration {
	if len(kinds) == 0 {
		return decls
	}
	out := decls[:0]
	for _, d := range decls {
		for _, k := range kinds {
			if d.Kind == k {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
