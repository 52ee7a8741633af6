package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// timeLayout is fixed width so stored timestamps compare as text.
	timeLayout = "2006-01-02 15:04:05.000"
	// parseLayout also accepts values without fractional seconds, as
	// written by SQLite's datetime('now').
	parseLayout = "2006-01-02 15:04:05.999999999"
)

// ErrInvalidArticle is returned when a record lacks a title or link.
var ErrInvalidArticle = errors.New("article requires title and link")

const articleColumns = "id, title, link, extracted_tokens, top_keyword, inserted_at"

// InsertArticle inserts a record unless its link is already stored.
// The uniqueness check and the insert happen in a single statement, so
// concurrent callers racing on one link see one Inserted and the rest
// Duplicate.
func (db *DB) InsertArticle(ctx context.Context, a NewArticle) (InsertResult, error) {
	title := strings.TrimSpace(a.Title)
	link := strings.TrimSpace(a.Link)
	if title == "" || link == "" {
		return Duplicate, ErrInvalidArticle
	}

	var insertedAt any
	if a.InsertedAt != nil {
		insertedAt = formatTime(*a.InsertedAt)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO articles (title, link, extracted_tokens, top_keyword, inserted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(link) DO NOTHING`,
		title, link, a.ExtractedTokens, a.TopKeyword, insertedAt,
	)
	if err != nil {
		return Duplicate, fmt.Errorf("inserting article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Duplicate, fmt.Errorf("inserting article: %w", err)
	}
	if n == 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

// QueryRecent returns records matching f, newest first. Records without an
// insert time sort after all timestamped ones; ties fall back to id
// descending.
func (db *DB) QueryRecent(ctx context.Context, f Filter) ([]Article, error) {
	where, args := db.whereClause(f)
	query := "SELECT " + articleColumns + " FROM articles" + where +
		" ORDER BY inserted_at IS NULL, inserted_at DESC, id DESC LIMIT ?"
	args = append(args, sqlLimit(f.Limit))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// AggregateTopKeywords counts records per stored top keyword over the
// records matching f, returning the k largest groups. Equal counts keep the
// order in which the groups first appear in the catalog. f.Limit is ignored.
func (db *DB) AggregateTopKeywords(ctx context.Context, f Filter, k int) ([]KeywordCount, error) {
	where, args := db.whereClause(f)
	query := "SELECT top_keyword, COUNT(*) AS cnt, MIN(id) AS first_id FROM articles" + where +
		" GROUP BY top_keyword ORDER BY cnt DESC, first_id ASC LIMIT ?"
	args = append(args, sqlLimit(k))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating keywords: %w", err)
	}
	defer rows.Close()

	var out []KeywordCount
	for rows.Next() {
		var kc KeywordCount
		var firstID int64
		if err := rows.Scan(&kc.Keyword, &kc.Count, &firstID); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

// GetArticleByLink returns the record stored under link, or nil.
func (db *DB) GetArticleByLink(ctx context.Context, link string) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE link = ?", link,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetStats returns aggregate catalog statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	var latest sql.NullString
	err := db.conn.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(*) - COUNT(inserted_at),
       COUNT(DISTINCT NULLIF(top_keyword, '')),
       MAX(inserted_at)
FROM articles`).Scan(&s.TotalArticles, &s.UndatedArticles, &s.DistinctKeywords, &latest)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	if latest.Valid {
		t, err := parseTime(latest.String)
		if err != nil {
			return nil, err
		}
		s.LatestInsert = &t
	}
	return s, nil
}

// whereClause renders the recency window and term match of f.
func (db *DB) whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.WithinDays > 0 {
		since := db.now().AddDate(0, 0, -f.WithinDays)
		conds = append(conds, "(inserted_at IS NULL OR inserted_at >= ?)")
		args = append(args, formatTime(since))
	}

	var match []string
	for _, term := range f.Terms {
		// SQLite's lower() folds ASCII only, so non-ASCII capitals in stored
		// text never match. Hangul has no case.
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		match = append(match,
			"instr(lower(title), ?) > 0",
			"instr(lower(extracted_tokens), ?) > 0",
			"instr(lower(top_keyword), ?) > 0",
		)
		args = append(args, term, term, term)
	}
	if len(match) > 0 {
		conds = append(conds, "("+strings.Join(match, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(parseLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(s scanner) (*Article, error) {
	var a Article
	var insertedAt sql.NullString
	if err := s.Scan(&a.ID, &a.Title, &a.Link, &a.ExtractedTokens, &a.TopKeyword, &insertedAt); err != nil {
		return nil, err
	}
	if insertedAt.Valid && insertedAt.String != "" {
		t, err := parseTime(insertedAt.String)
		if err != nil {
			return nil, err
		}
		a.InsertedAt = &t
	}
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	return scanInto(row)
}
