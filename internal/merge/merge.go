// Package merge answers article and keyword queries by combining the stored
// catalog with live search results.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/TobiSchelling/trendcrawler/internal/collect"
	"github.com/TobiSchelling/trendcrawler/internal/database"
	"github.com/TobiSchelling/trendcrawler/internal/keywords"
	"github.com/TobiSchelling/trendcrawler/internal/logger"
)

const (
	// TopKeywordLimit is the fixed size of every keyword ranking.
	TopKeywordLimit = 20
	// MaxArticleLimit caps the article count of a single query.
	MaxArticleLimit = 500
	// keywordTitleLimit caps stored titles retokenized per keyword query.
	keywordTitleLimit = 1000
	// keywordLiveLimit caps live items fetched per keyword query.
	keywordLiveLimit = 100
)

// Store is the catalog surface the engine reads and backfills.
type Store interface {
	QueryRecent(ctx context.Context, f database.Filter) ([]database.Article, error)
	AggregateTopKeywords(ctx context.Context, f database.Filter, k int) ([]database.KeywordCount, error)
	InsertArticle(ctx context.Context, a database.NewArticle) (database.InsertResult, error)
}

// Item is an article as returned to query callers.
type Item struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Options tune the engine.
type Options struct {
	// AlwaysFetchLive supplements term queries with live results even when
	// the catalog already filled the limit.
	AlwaysFetchLive bool
	// FetchTimeout bounds each live fetch. Zero means no extra bound.
	FetchTimeout time.Duration
}

// Engine resolves queries. It keeps no state between calls.
type Engine struct {
	store    Store
	live     collect.Source
	tok      *keywords.Tokenizer
	expander *keywords.Expander
	opts     Options
	log      logger.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(store Store, live collect.Source, tok *keywords.Tokenizer, expander *keywords.Expander, opts Options, log logger.Logger) *Engine {
	return &Engine{
		store:    store,
		live:     live,
		tok:      tok,
		expander: expander,
		opts:     opts,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

// ResolveArticles returns up to limit articles. Limits above
// MaxArticleLimit are lowered to it.
//
// Without a term it lists the catalog's recent records and never searches
// live. With a term it lists catalog matches for the expanded term first,
// then appends live results whose links were not seen yet, storing each of
// those on a best-effort basis.
func (e *Engine) ResolveArticles(ctx context.Context, term string, limit, recencyDays int) ([]Item, error) {
	if limit <= 0 {
		return []Item{}, nil
	}
	limit = min(limit, MaxArticleLimit)

	term = strings.TrimSpace(term)
	if term == "" {
		rows, err := e.store.QueryRecent(ctx, database.Filter{WithinDays: recencyDays, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("listing recent articles: %w", err)
		}
		return toItems(rows), nil
	}

	// Term searches cover the whole catalog regardless of recency.
	rows, err := e.store.QueryRecent(ctx, database.Filter{
		Terms: e.expander.Expand(term),
		Limit: 2 * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}

	results := make([]Item, 0, min(limit, len(rows)))
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, dup := seen[row.Link]; dup {
			continue
		}
		seen[row.Link] = struct{}{}
		results = append(results, Item{Title: row.Title, Link: row.Link})
	}

	if len(results) < limit || e.opts.AlwaysFetchLive {
		now := e.now()
		for _, it := range e.fetchLive(ctx, term, 2*limit) {
			if _, dup := seen[it.Link]; dup {
				continue
			}
			seen[it.Link] = struct{}{}
			results = append(results, Item{Title: it.Title, Link: it.Link})
			e.backfill(ctx, it, now)
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ResolveTopKeywords ranks the top keywords.
//
// Without a term it counts the stored top keyword of each record in the
// recency window. With a term it retokenizes matching stored titles and live
// search titles and ranks the combined tokens, stored ones first.
func (e *Engine) ResolveTopKeywords(ctx context.Context, term string, recencyDays int) ([]keywords.Count, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		rows, err := e.store.AggregateTopKeywords(ctx, database.Filter{WithinDays: recencyDays}, TopKeywordLimit)
		if err != nil {
			return nil, fmt.Errorf("aggregating keywords: %w", err)
		}
		return lo.Map(rows, func(r database.KeywordCount, _ int) keywords.Count {
			return keywords.Count{Keyword: r.Keyword, Count: r.Count}
		}), nil
	}

	rows, err := e.store.QueryRecent(ctx, database.Filter{
		WithinDays: recencyDays,
		Terms:      e.expander.Expand(term),
		Limit:      keywordTitleLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}

	counter := keywords.NewCounter()
	for _, row := range rows {
		counter.Add(e.tok.Tokenize(row.Title)...)
	}
	live := e.fetchLive(ctx, term, keywordLiveLimit)
	for _, it := range live {
		counter.Add(e.tok.Tokenize(it.Title)...)
	}
	e.log.Debugw("ranked keywords", "term", term,
		"stored_titles", len(rows), "live_titles", len(live), "distinct", counter.Len())
	return counter.TopK(TopKeywordLimit), nil
}

// fetchLive searches the live source. Failures are logged and yield no
// items.
func (e *Engine) fetchLive(ctx context.Context, term string, max int) []collect.RawItem {
	if e.live == nil {
		return nil
	}
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	items, err := e.live.Fetch(ctx, term, max)
	if err != nil {
		if collect.IsFetchError(err) {
			e.log.Warnw("live search failed", "term", term, "error", err)
		} else {
			e.log.Errorw("live search aborted", "term", term, "error", err)
		}
		return nil
	}
	return items
}

// backfill stores a live item. Duplicates and errors are ignored.
func (e *Engine) backfill(ctx context.Context, it collect.RawItem, now time.Time) {
	res, err := e.store.InsertArticle(ctx, collect.NewArticle(e.tok, it, now))
	if err != nil {
		e.log.Debugw("backfill failed", "link", it.Link, "error", err)
		return
	}
	if res == database.Duplicate {
		e.log.Debugw("backfill skipped duplicate", "link", it.Link)
	}
}

func toItems(rows []database.Article) []Item {
	return lo.Map(rows, func(a database.Article, _ int) Item {
		return Item{Title: a.Title, Link: a.Link}
	})
}
