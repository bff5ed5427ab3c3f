package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 2

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	// Indexes are derived data, so an outdated layout is simply rebuilt.
	for _, query := range []string{
		`DROP TABLE IF EXISTS supertypes`,
		`DROP TABLE IF EXISTS declarations`,
		`DROP TABLE IF EXISTS files`,
	} {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}
	if err := createTables(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return tx.Commit()
}

func createTables(tx *sql.Tx) error {
	queries := []string{
		// One row per indexed source file.
		// - path: project relative, slash separated
		// - hash: xxh3 of the content the declarations were taken from
		`CREATE TABLE IF NOT EXISTS files (
            path TEXT PRIMARY KEY,
            language TEXT NOT NULL,
            hash INTEGER NOT NULL,
            indexed_at INTEGER NOT NULL
        )`,

		// Declarations found in a file. container is the name of the
		// enclosing declaration, or the receiver type of a Go method.
		// type_name is the declared type of fields and variables.
		`CREATE TABLE IF NOT EXISTS declarations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            path TEXT NOT NULL,
            name TEXT NOT NULL,
            kind INTEGER NOT NULL,
            container TEXT NOT NULL DEFAULT '',
            type_name TEXT NOT NULL DEFAULT '',
            start_line INTEGER NOT NULL,
            start_char INTEGER NOT NULL,
            end_line INTEGER NOT NULL,
            end_char INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_declarations_name
            ON declarations(name)`,
		`CREATE INDEX IF NOT EXISTS idx_declarations_container
            ON declarations(container)`,
		`CREATE INDEX IF NOT EXISTS idx_declarations_path
            ON declarations(path)`,

		// Types named in the extends or implements clauses of a
		// declaration.
		`CREATE TABLE IF NOT EXISTS supertypes (
            declaration_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            PRIMARY KEY (declaration_id, name)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_supertypes_name
            ON supertypes(name)`,
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}
	return nil
}
