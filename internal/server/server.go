package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/trendcrawler/internal/keywords"
	"github.com/TobiSchelling/trendcrawler/internal/logger"
	"github.com/TobiSchelling/trendcrawler/internal/merge"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Resolver answers article and keyword queries.
type Resolver interface {
	ResolveArticles(ctx context.Context, term string, limit, recencyDays int) ([]merge.Item, error)
	ResolveTopKeywords(ctx context.Context, term string, recencyDays int) ([]keywords.Count, error)
}

// Options configure request defaults.
type Options struct {
	RecentDays   int
	ArticleLimit int
	// QueryTimeout bounds a single request, including its live fetches.
	QueryTimeout time.Duration
}

// Server is the HTTP server exposing the query API and the landing page.
type Server struct {
	resolver Resolver
	opts     Options
	log      logger.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server.
func New(resolver Resolver, opts Options, log logger.Logger) (*Server, error) {
	if opts.ArticleLimit <= 0 {
		opts.ArticleLimit = 20
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		resolver: resolver,
		opts:     opts,
		log:      logger.OrNop(log),
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/articles", s.handleArticles)
	s.mux.HandleFunc("/api/topwords", s.handleTopWords)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	articles, err := s.resolver.ResolveArticles(ctx, "", s.opts.ArticleLimit, s.opts.RecentDays)
	if err != nil {
		s.fail(w, "index articles", err)
		return
	}
	top, err := s.resolver.ResolveTopKeywords(ctx, "", s.opts.RecentDays)
	if err != nil {
		s.fail(w, "index keywords", err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Articles":   articles,
		"Keywords":   top,
		"RecentDays": s.opts.RecentDays,
		"Digest":     digestMarkdown(top, s.opts.RecentDays),
	})
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := intParam(r, "limit", s.opts.ArticleLimit)
	if limit > merge.MaxArticleLimit {
		limit = s.opts.ArticleLimit
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	items, err := s.resolver.ResolveArticles(ctx, q, limit, s.opts.RecentDays)
	if err != nil {
		s.fail(w, "articles", err)
		return
	}
	if items == nil {
		items = []merge.Item{}
	}
	writeJSON(w, items)
}

func (s *Server) handleTopWords(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	days := intParam(r, "days", s.opts.RecentDays)

	ctx, cancel := s.requestContext(r)
	defer cancel()

	top, err := s.resolver.ResolveTopKeywords(ctx, q, days)
	if err != nil {
		s.fail(w, "topwords", err)
		return
	}

	pairs := make([][2]any, len(top))
	for i, c := range top {
		pairs[i] = [2]any{c.Keyword, c.Count}
	}
	writeJSON(w, pairs)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.QueryTimeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.QueryTimeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.log.Errorw("query failed", "query", what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Errorw("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Errorw("rendering template", "template", name, "error", err)
	}
}

// intParam parses an integer query parameter, falling back to def when it
// is missing, malformed or does not fit an int.
func intParam(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

// digestMarkdown summarizes a keyword ranking as Markdown.
func digestMarkdown(top []keywords.Count, days int) string {
	if len(top) == 0 {
		return "_No keywords collected yet._"
	}
	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "Most frequent headline keywords over the last **%d days**:\n\n", days)
	} else {
		b.WriteString("Most frequent headline keywords:\n\n")
	}
	n := min(len(top), 5)
	for i, c := range top[:n] {
		kw := c.Keyword
		if kw == "" {
			kw = "(none)"
		}
		fmt.Fprintf(&b, "%d. **%s** (%d)\n", i+1, escapeMarkdown(kw), c.Count)
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(resolver Resolver, opts Options, port int, log logger.Logger) error {
	srv, err := New(resolver, opts, log)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.OrNop(log).Infow("server listening", "addr", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
