package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/trendcrawler/internal/database"
	"github.com/TobiSchelling/trendcrawler/internal/keywords"
	"github.com/TobiSchelling/trendcrawler/internal/logger"
)

// Store is the part of the catalog the collector writes to.
type Store interface {
	InsertArticle(ctx context.Context, a database.NewArticle) (database.InsertResult, error)
}

// Options control a collection run.
type Options struct {
	// Limit caps the number of new records inserted in this run. Zero or
	// negative means no cap.
	Limit int
	// Sleep is the pause between two feeds.
	Sleep time.Duration
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound    int
	NewArticles   int
	Duplicates    int
	Invalid       int
	FailedSources []string
	Sources       map[string]int
}

// Collector inserts feed items into the catalog, skipping links already
// stored.
type Collector struct {
	store  Store
	source Source
	tok    *keywords.Tokenizer
	log    logger.Logger
	now    func() time.Time
	sleep  func(time.Duration)
}

// NewCollector creates a collector reading feeds from source.
func NewCollector(store Store, source Source, tok *keywords.Tokenizer, log logger.Logger) *Collector {
	return &Collector{
		store:  store,
		source: source,
		tok:    tok,
		log:    logger.OrNop(log),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Collect walks feeds in order until opts.Limit new records are inserted.
// A feed that fails is logged and skipped. Only store failures and context
// cancellation end the run early with an error; the partial result is
// returned alongside.
func (c *Collector) Collect(ctx context.Context, feeds []string, opts Options) (*Result, error) {
	r := &Result{Sources: make(map[string]int)}

	for i, feedURL := range feeds {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if i > 0 && opts.Sleep > 0 {
			c.sleep(opts.Sleep)
		}

		items, err := c.source.Fetch(ctx, feedURL, 0)
		if err != nil {
			if !IsFetchError(err) {
				// Cancellation surfaces as a plain context error.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return r, ctxErr
				}
			}
			c.log.Warnw("feed failed, skipping", "feed", feedURL, "error", err)
			r.FailedSources = append(r.FailedSources, feedURL)
			continue
		}
		r.TotalFound += len(items)
		c.log.Debugw("parsed feed", "feed", feedURL, "items", len(items))

		name := SourceName(feedURL)
		for _, item := range items {
			res, err := c.insert(ctx, item)
			if errors.Is(err, database.ErrInvalidArticle) {
				r.Invalid++
				continue
			}
			if err != nil {
				return r, fmt.Errorf("storing %s: %w", item.Link, err)
			}
			if res == database.Duplicate {
				r.Duplicates++
				continue
			}
			r.NewArticles++
			r.Sources[name]++
			if limitReached(r, opts) {
				break
			}
		}
		if limitReached(r, opts) {
			break
		}
	}

	c.log.Infow("collection complete",
		"found", r.TotalFound, "new", r.NewArticles,
		"duplicates", r.Duplicates, "failed_sources", len(r.FailedSources))
	return r, nil
}

func (c *Collector) insert(ctx context.Context, item RawItem) (database.InsertResult, error) {
	now := c.now()
	return c.store.InsertArticle(ctx, NewArticle(c.tok, item, now))
}

// NewArticle builds the catalog record for a fetched item.
func NewArticle(tok *keywords.Tokenizer, item RawItem, insertedAt time.Time) database.NewArticle {
	return database.NewArticle{
		Title:           item.Title,
		Link:            item.Link,
		ExtractedTokens: strings.Join(tok.Tokenize(item.Title), " "),
		TopKeyword:      tok.TopKeyword(item.Title),
		InsertedAt:      &insertedAt,
	}
}

func limitReached(r *Result, opts Options) bool {
	return opts.Limit > 0 && r.NewArticles >= opts.Limit
}
