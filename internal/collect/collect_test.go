package collect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/trendcrawler/internal/database"
	"github.com/TobiSchelling/trendcrawler/internal/keywords"
)

type fakeSource struct {
	items map[string][]RawItem
	errs  map[string]error
	calls []string
}

func (f *fakeSource) Fetch(ctx context.Context, ref string, max int) ([]RawItem, error) {
	f.calls = append(f.calls, ref)
	if err := f.errs[ref]; err != nil {
		return nil, err
	}
	items := f.items[ref]
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func items(prefix string, n int) []RawItem {
	out := make([]RawItem, n)
	for i := range out {
		out[i] = RawItem{
			Title: fmt.Sprintf("%s 반도체 뉴스 %d", prefix, i),
			Link:  fmt.Sprintf("https://%s.example/%d", prefix, i),
		}
	}
	return out
}

func newTestCollector(db *database.DB, src Source) (*Collector, *[]time.Duration) {
	c := NewCollector(db, src, keywords.NewTokenizer([]string{"뉴스"}), nil)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestCollectInsertsAndSkipsDuplicates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := &fakeSource{items: map[string][]RawItem{
		"https://a.example/rss": items("a", 3),
		"https://b.example/rss": append(items("a", 1), items("b", 2)...),
	}}
	c, slept := newTestCollector(db, src)

	r, err := c.Collect(ctx, []string{"https://a.example/rss", "https://b.example/rss"}, Options{Limit: 50, Sleep: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalFound != 6 || r.NewArticles != 5 || r.Duplicates != 1 {
		t.Errorf("unexpected result %+v", r)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Errorf("expected one sleep between the two feeds, got %v", *slept)
	}

	stored, _ := db.GetArticleByLink(ctx, "https://a.example/0")
	if stored == nil {
		t.Fatal("expected item to be stored")
	}
	if stored.TopKeyword != "반도체" {
		t.Errorf("expected top keyword 반도체, got %q", stored.TopKeyword)
	}
	if stored.ExtractedTokens != "반도체" {
		t.Errorf("expected stopword-free tokens, got %q", stored.ExtractedTokens)
	}
	if stored.InsertedAt == nil {
		t.Error("expected insert time to be set")
	}

	// A second run finds nothing new.
	r, err = c.Collect(ctx, []string{"https://a.example/rss"}, Options{Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.NewArticles != 0 || r.Duplicates != 3 {
		t.Errorf("expected all duplicates on rerun, got %+v", r)
	}
}

func TestCollectStopsAtLimit(t *testing.T) {
	db := openTestDB(t)
	src := &fakeSource{items: map[string][]RawItem{
		"https://a.example/rss": items("a", 3),
		"https://b.example/rss": items("b", 3),
		"https://c.example/rss": items("c", 3),
	}}
	c, slept := newTestCollector(db, src)

	r, err := c.Collect(context.Background(),
		[]string{"https://a.example/rss", "https://b.example/rss", "https://c.example/rss"},
		Options{Limit: 4, Sleep: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.NewArticles != 4 {
		t.Errorf("expected 4 inserts, got %d", r.NewArticles)
	}
	if len(src.calls) != 2 {
		t.Errorf("expected the third feed to be skipped once the limit is hit, calls=%v", src.calls)
	}
	if len(*slept) != 1 {
		t.Errorf("expected one sleep, got %d", len(*slept))
	}
}

func TestCollectDuplicatesDoNotConsumeLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := &fakeSource{items: map[string][]RawItem{
		"https://a.example/rss": items("a", 2),
		"https://b.example/rss": append(items("a", 2), items("b", 2)...),
	}}
	c, _ := newTestCollector(db, src)

	r, err := c.Collect(ctx, []string{"https://a.example/rss", "https://b.example/rss"}, Options{Limit: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.NewArticles != 4 || r.Duplicates != 2 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestCollectSkipsFailingSource(t *testing.T) {
	db := openTestDB(t)
	src := &fakeSource{
		items: map[string][]RawItem{"https://ok.example/rss": items("ok", 2)},
		errs: map[string]error{
			"https://down.example/rss": &FetchError{Ref: "https://down.example/rss", Err: errors.New("connection refused")},
		},
	}
	c, _ := newTestCollector(db, src)

	r, err := c.Collect(context.Background(), []string{"https://down.example/rss", "https://ok.example/rss"}, Options{})
	if err != nil {
		t.Fatalf("a failing source must not abort the run: %v", err)
	}
	if r.NewArticles != 2 {
		t.Errorf("expected 2 inserts from the healthy feed, got %d", r.NewArticles)
	}
	if len(r.FailedSources) != 1 || r.FailedSources[0] != "https://down.example/rss" {
		t.Errorf("unexpected failed sources %v", r.FailedSources)
	}
	if r.Sources["Ok"] != 2 {
		t.Errorf("expected per-source count for Ok, got %v", r.Sources)
	}
}

func TestCollectCancelled(t *testing.T) {
	db := openTestDB(t)
	src := &fakeSource{items: map[string][]RawItem{"https://a.example/rss": items("a", 1)}}
	c, _ := newTestCollector(db, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Collect(ctx, []string{"https://a.example/rss"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no fetch after cancellation, got %v", src.calls)
	}
}

func TestCollectCountsInvalidItems(t *testing.T) {
	db := openTestDB(t)
	src := &fakeSource{items: map[string][]RawItem{
		"https://a.example/rss": {
			{Title: "", Link: "https://a.example/no-title"},
			{Title: "제목 없는 링크", Link: "  "},
			{Title: "정상 기사 제목", Link: "https://a.example/ok"},
		},
	}}
	c, _ := newTestCollector(db, src)

	res, err := c.Collect(context.Background(), []string{"https://a.example/rss"}, Options{Limit: 10})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Invalid != 2 || res.NewArticles != 1 {
		t.Errorf("expected 2 invalid and 1 new, got %+v", res)
	}
}

type cancellingSource struct {
	cancel context.CancelFunc
	calls  int
}

func (s *cancellingSource) Fetch(ctx context.Context, ref string, max int) ([]RawItem, error) {
	s.calls++
	s.cancel()
	return nil, ctx.Err()
}

func TestCollectStopsWhenCancelledDuringFetch(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{cancel: cancel}
	c, _ := newTestCollector(db, src)

	res, err := c.Collect(ctx, []string{"https://a.example/rss", "https://b.example/rss"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.calls != 1 {
		t.Errorf("expected the run to stop after the first feed, got %d fetches", src.calls)
	}
	if len(res.FailedSources) != 0 {
		t.Errorf("a cancelled fetch is not a failed source, got %v", res.FailedSources)
	}
}
