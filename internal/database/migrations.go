package database

import (
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    link TEXT NOT NULL,
    extracted_tokens TEXT NOT NULL DEFAULT '',
    top_keyword TEXT NOT NULL DEFAULT ''
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "add inserted_at and unique link index",
		Up: func(tx *sql.Tx) error {
			has, err := hasColumn(tx, "articles", "inserted_at")
			if err != nil {
				return err
			}
			if !has {
				// Existing rows keep NULL: their insert time is unknown.
				if _, err := tx.Exec("ALTER TABLE articles ADD COLUMN inserted_at TEXT"); err != nil {
					return err
				}
			}
			_, err = tx.Exec(`
DELETE FROM articles WHERE id NOT IN (SELECT MIN(id) FROM articles GROUP BY link);
CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_link ON articles(link);
CREATE INDEX IF NOT EXISTS idx_articles_inserted_at ON articles(inserted_at);
CREATE INDEX IF NOT EXISTS idx_articles_top_keyword ON articles(top_keyword);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info('%s')", table))
	if err != nil {
		return false, fmt.Errorf("reading table info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
