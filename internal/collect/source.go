package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawItem is a titled, linked item returned by a Source.
type RawItem struct {
	Title string
	Link  string
}

// Source returns items for a reference: a feed URL for batch collection or
// a search term for live queries. max <= 0 returns every item.
type Source interface {
	Fetch(ctx context.Context, ref string, max int) ([]RawItem, error)
}

// FetchError reports that a single source could not be fetched or parsed.
// It never invalidates other sources.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is, or wraps, a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// newRawItem trims title and link, returning false when either is empty.
func newRawItem(title, link string) (RawItem, bool) {
	item := RawItem{
		Title: cleanTitle(title),
		Link:  strings.TrimSpace(link),
	}
	return item, item.Title != "" && item.Link != ""
}

// cleanTitle strips markup and entities some search endpoints leave in
// titles, such as <b> around matched terms, and collapses whitespace.
func cleanTitle(title string) string {
	if strings.ContainsAny(title, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(title)); err == nil {
			title = doc.Text()
		}
	}
	return strings.Join(strings.Fields(title), " ")
}
