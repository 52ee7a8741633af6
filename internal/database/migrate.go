package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// schemaVersion is the catalog's PRAGMA user_version.
func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func setSchemaVersion(conn *sql.DB, v int) error {
	// modernc/sqlite does not honour user_version inside a transaction.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("setting schema version %d: %w", v, err)
	}
	return nil
}

// hasArticlesTable reports whether an articles table already exists.
func hasArticlesTable(conn *sql.DB) (bool, error) {
	var n int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'articles'",
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up articles table: %w", err)
	}
	return n > 0, nil
}

// migrate upgrades the catalog to the latest schema version.
//
// Catalogs written before versioning have an articles table but
// user_version 0. They are treated as version 1, so migration 2 adds the
// insert timestamp and link uniqueness they lack.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		unversioned, err := hasArticlesTable(conn)
		if err != nil {
			return err
		}
		if unversioned {
			zap.S().Infow("found unversioned catalog", "assumed_version", 1)
			if err := setSchemaVersion(conn, 1); err != nil {
				return err
			}
			current = 1
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		current = m.Version
	}
	return nil
}

// apply runs one migration in a transaction and records its version.
// Migration bodies are idempotent, so a crash between commit and version
// stamp re-runs safely.
func apply(conn *sql.DB, m Migration) error {
	zap.S().Infow("applying migration", "version", m.Version, "description", m.Description)

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return setSchemaVersion(conn, m.Version)
}
