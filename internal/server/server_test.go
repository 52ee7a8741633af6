package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/trendcrawler/internal/collect"
	"github.com/TobiSchelling/trendcrawler/internal/config"
	"github.com/TobiSchelling/trendcrawler/internal/database"
	"github.com/TobiSchelling/trendcrawler/internal/keywords"
	"github.com/TobiSchelling/trendcrawler/internal/merge"
)

type stubSource struct {
	items []collect.RawItem
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, ref string, max int) ([]collect.RawItem, error) {
	s.calls++
	return s.items, nil
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

func newTestServer(t *testing.T, db *database.DB, src *stubSource) *Server {
	t.Helper()
	text := config.Default().Text
	tok := keywords.NewTokenizer(text.Stopwords)
	engine := merge.New(db, src, tok, keywords.NewExpander(text.Synonyms), merge.Options{}, nil)

	srv, err := New(engine, Options{RecentDays: 3, ArticleLimit: 20, QueryTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func seed(t *testing.T, db *database.DB, title, link string) {
	t.Helper()
	tok := keywords.NewTokenizer(config.Default().Text.Stopwords)
	a := collect.NewArticle(tok, collect.RawItem{Title: title, Link: link}, time.Now())
	if _, err := db.InsertArticle(context.Background(), a); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, "반도체 수출 반도체 호조", "https://a.com/1")
	src := &stubSource{}
	srv := newTestServer(t, db, src)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "반도체 수출 반도체 호조") {
		t.Error("expected recent article title in response")
	}
	if !strings.Contains(body, "<strong>반도체</strong>") {
		t.Error("expected markdown digest rendered to HTML")
	}
	if src.calls != 0 {
		t.Errorf("index page must not search live, got %d calls", src.calls)
	}
}

func TestIndexNotFound(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &stubSource{})
	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestArticlesAPI(t *testing.T) {
	db := openTestDB(t)
	for _, link := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		seed(t, db, "게임 신작 "+link, link)
	}
	src := &stubSource{items: []collect.RawItem{{Title: "넥슨 신작", Link: "https://live.example/1"}}}
	srv := newTestServer(t, db, src)

	rec := get(t, srv, "/api/articles?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []merge.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(items) != 2 || items[0].Link != "https://a.com/3" {
		t.Errorf("unexpected items %+v", items)
	}

	// Malformed limit falls back to the default.
	rec = get(t, srv, "/api/articles?limit=abc")
	items = nil
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 3 {
		t.Errorf("expected default limit to return all 3, got %d", len(items))
	}

	rec = get(t, srv, "/api/articles?q=%EA%B2%8C%EC%9E%84&limit=10")
	items = nil
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 4 || items[3].Link != "https://live.example/1" {
		t.Errorf("expected local matches then live item, got %+v", items)
	}
	if src.calls != 1 {
		t.Errorf("expected one live search, got %d", src.calls)
	}
}

func TestArticlesAPIOversizedLimit(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, "게임 신작 발표", "https://a.com/1")
	srv := newTestServer(t, db, &stubSource{})

	for _, limit := range []string{"9223372036854775807", "99999999999999999999", "10000000000"} {
		rec := get(t, srv, "/api/articles?q=%EA%B2%8C%EC%9E%84&limit="+limit)
		if rec.Code != http.StatusOK {
			t.Fatalf("limit=%s: expected 200, got %d", limit, rec.Code)
		}
		var items []merge.Item
		if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
			t.Fatalf("limit=%s: decoding response: %v", limit, err)
		}
		if len(items) != 1 {
			t.Errorf("limit=%s: expected 1 item, got %+v", limit, items)
		}
	}
}

func TestArticlesAPIEmpty(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &stubSource{})
	rec := get(t, srv, "/api/articles")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestTopWordsAPI(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, "반도체 반도체 수출", "https://a.com/1")
	seed(t, db, "반도체 호조", "https://a.com/2")
	seed(t, db, "수출 감소", "https://a.com/3")
	srv := newTestServer(t, db, &stubSource{})

	rec := get(t, srv, "/api/topwords?days=xyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var pairs [][]any
	if err := json.Unmarshal(rec.Body.Bytes(), &pairs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 keyword pairs, got %v", pairs)
	}
	if pairs[0][0] != "반도체" || pairs[0][1] != float64(2) {
		t.Errorf("unexpected first pair %v", pairs[0])
	}

	rec = get(t, srv, "/api/topwords?q=%EC%88%98%EC%B6%9C&days=0")
	pairs = nil
	json.Unmarshal(rec.Body.Bytes(), &pairs)
	if len(pairs) == 0 || pairs[0][0] != "수출" {
		t.Errorf("expected 수출 to lead term ranking, got %v", pairs)
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &stubSource{})

	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-sans") {
		t.Error("expected CSS content")
	}
}

func TestDigestMarkdown(t *testing.T) {
	if got := digestMarkdown(nil, 3); !strings.Contains(got, "No keywords") {
		t.Errorf("unexpected empty digest %q", got)
	}
	got := digestMarkdown([]keywords.Count{{Keyword: "a_b*", Count: 2}, {Keyword: "", Count: 1}}, 0)
	if !strings.Contains(got, `**a\_b\***`) || !strings.Contains(got, "(none)") {
		t.Errorf("unexpected digest %q", got)
	}
}
