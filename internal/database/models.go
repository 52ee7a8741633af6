package database

import "time"

// Article is a stored catalog record. Link is unique across the catalog.
type Article struct {
	ID              int64
	Title           string
	Link            string
	ExtractedTokens string
	TopKeyword      string
	// InsertedAt is nil for records whose insert time is unknown. Such
	// records fall inside every recency window.
	InsertedAt *time.Time
}

// NewArticle holds the fields of a record to insert. ID is assigned by the
// store.
type NewArticle struct {
	Title           string
	Link            string
	ExtractedTokens string
	TopKeyword      string
	InsertedAt      *time.Time
}

// InsertResult reports the outcome of InsertArticle.
type InsertResult int

const (
	Inserted InsertResult = iota
	Duplicate
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Filter selects catalog records.
type Filter struct {
	// WithinDays keeps records inserted in the last N days, plus records
	// without an insert time. Zero or negative disables the window.
	WithinDays int
	// Terms keeps records where any term is a case-insensitive substring of
	// the title, extracted tokens or top keyword. Empty disables matching.
	Terms []string
	// Limit caps the number of rows. Zero or negative means no cap.
	Limit int
}

// KeywordCount is a stored top keyword with the number of records carrying it.
type KeywordCount struct {
	Keyword string
	Count   int
}

// Stats contains aggregate catalog statistics.
type Stats struct {
	TotalArticles    int
	UndatedArticles  int
	DistinctKeywords int
	LatestInsert     *time.Time
}
