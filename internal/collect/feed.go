package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
)

const userAgent = "trendcrawler/1.0 (news aggregator)"

// FeedClient downloads and parses RSS/Atom feeds. Its refs are feed URLs.
type FeedClient struct {
	http *resty.Client
}

// NewFeedClient creates a FeedClient whose requests give up after timeout.
func NewFeedClient(timeout time.Duration) *FeedClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	return &FeedClient{http: client}
}

// Fetch downloads feedURL and returns up to max valid items in feed order.
func (c *FeedClient) Fetch(ctx context.Context, feedURL string, max int) ([]RawItem, error) {
	resp, err := c.http.R().SetContext(ctx).Get(feedURL)
	if err != nil {
		return nil, &FetchError{Ref: feedURL, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Ref: feedURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode())}
	}

	// A parser per call: gofeed parsers keep per-document state.
	feed, err := gofeed.NewParser().ParseString(string(resp.Body()))
	if err != nil {
		return nil, &FetchError{Ref: feedURL, Err: fmt.Errorf("parsing feed: %w", err)}
	}
	return feedItems(feed, max), nil
}

func feedItems(feed *gofeed.Feed, max int) []RawItem {
	var items []RawItem
	for _, it := range feed.Items {
		if max > 0 && len(items) >= max {
			break
		}
		if it == nil {
			continue
		}
		item, ok := newRawItem(it.Title, it.Link)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

// SearchFeed runs a live search against a feed endpoint whose URL is built
// from a template containing "{query}". Its refs are search terms.
type SearchFeed struct {
	feeds    *FeedClient
	template string
}

// NewSearchFeed creates a SearchFeed over feeds.
func NewSearchFeed(feeds *FeedClient, template string) *SearchFeed {
	return &SearchFeed{feeds: feeds, template: template}
}

// Fetch searches for term and returns up to max valid items.
func (s *SearchFeed) Fetch(ctx context.Context, term string, max int) ([]RawItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return s.feeds.Fetch(ctx, s.searchURL(term), max)
}

func (s *SearchFeed) searchURL(term string) string {
	return strings.ReplaceAll(s.template, "{query}", url.QueryEscape(term))
}

// SourceName derives a short display name from a feed URL.
func SourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
