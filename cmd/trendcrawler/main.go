package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/trendcrawler/internal/collect"
	"github.com/TobiSchelling/trendcrawler/internal/config"
	"github.com/TobiSchelling/trendcrawler/internal/database"
	"github.com/TobiSchelling/trendcrawler/internal/keywords"
	"github.com/TobiSchelling/trendcrawler/internal/logger"
	"github.com/TobiSchelling/trendcrawler/internal/merge"
	"github.com/TobiSchelling/trendcrawler/internal/schedule"
	"github.com/TobiSchelling/trendcrawler/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *zap.SugaredLogger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "trendcrawler",
	Short:   "Trending news keywords",
	Long:    "trendcrawler collects news headlines from RSS feeds and ranks the keywords trending in them.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case errors.Is(err, config.ErrNoConfig):
			cfg = config.Default()
		case err != nil:
			return err
		default:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(log.Desugar())
		if path != "" {
			log.Debugw("config loaded", "path", path)
		}

		// API keys may live in a .env file in the working directory.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnw("reading .env", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(showCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("trendcrawler", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/trendcrawler/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, stopwords and synonyms.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Articles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Without insert time: %d\n", stats.UndatedArticles)
		fmt.Printf("  Distinct top keywords: %d\n", stats.DistinctKeywords)
		if stats.LatestInsert != nil {
			fmt.Printf("  Last collected: %s\n", stats.LatestInsert.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("  Last collected: never")
		}
		fmt.Println("\nFeeds:")
		for _, u := range cfg.FeedURLs() {
			fmt.Printf("  %s\n", u)
		}
		return nil
	},
}

// --- collect command ---

var (
	collectLimit int
	feedsFile    string
	sleepSeconds float64
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from RSS feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		feeds, err := resolveFeeds(feedsFile)
		if err != nil {
			return err
		}

		opts := collect.Options{Limit: collectLimit, Sleep: cfg.Ingest.Sleep}
		if !cmd.Flags().Changed("limit") {
			opts.Limit = cfg.Ingest.Limit
		}
		if cmd.Flags().Changed("sleep") {
			opts.Sleep = time.Duration(sleepSeconds * float64(time.Second))
		}

		fmt.Printf("Collecting articles from %d feed(s)...\n", len(feeds))
		collector := collect.NewCollector(db, collect.NewFeedClient(cfg.Search.Timeout), newTokenizer(), log)
		result, err := collector.Collect(cmd.Context(), feeds, opts)
		if result != nil {
			printCollectResult(result)
		}
		return err
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectLimit, "limit", 50, "Maximum number of new articles to insert")
	collectCmd.Flags().StringVar(&feedsFile, "feeds", "", "File with one feed URL per line")
	collectCmd.Flags().Float64Var(&sleepSeconds, "sleep", 0.5, "Seconds to wait between feeds")
}

// resolveFeeds returns the feeds named in path, or the configured feeds when
// path is empty. An empty feeds file falls back to the default feed.
func resolveFeeds(path string) ([]string, error) {
	if path == "" {
		return cfg.FeedURLs(), nil
	}
	feeds, err := config.LoadFeedList(path)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		def := cfg.Sources.DefaultFeed
		if def == "" {
			def = config.DefaultFeedURL
		}
		return []string{def}, nil
	}
	return feeds, nil
}

func printCollectResult(result *collect.Result) {
	fmt.Println("\nCollection complete:")
	fmt.Printf("  Total found: %d\n", result.TotalFound)
	fmt.Printf("  New articles: %d\n", result.NewArticles)
	fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
	if result.Invalid > 0 {
		fmt.Printf("  Invalid items skipped: %d\n", result.Invalid)
	}
	if len(result.FailedSources) > 0 {
		fmt.Printf("  Failed feeds: %s\n", strings.Join(result.FailedSources, ", "))
	}

	if len(result.Sources) > 0 {
		fmt.Println("\nArticles by source:")
		// Sort sources by count descending
		type kv struct {
			key string
			val int
		}
		var sorted []kv
		for k, v := range result.Sources {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
		for _, s := range sorted {
			fmt.Printf("  %s: %d\n", s.key, s.val)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}

		opts := server.Options{
			RecentDays:   cfg.Query.RecentDays,
			ArticleLimit: cfg.Query.ArticleLimit,
			QueryTimeout: 3 * cfg.Search.Timeout,
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(newEngine(db), opts, port, log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- schedule command ---

var (
	cronSpec string
	runNow   bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Collect articles periodically until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		spec := cronSpec
		if spec == "" {
			spec = cfg.Ingest.Schedule
		}

		collector := collect.NewCollector(db, collect.NewFeedClient(cfg.Search.Timeout), newTokenizer(), log)
		opts := collect.Options{Limit: cfg.Ingest.Limit, Sleep: cfg.Ingest.Sleep}
		sched, err := schedule.New(spec, collector, cfg.FeedURLs(), opts, log)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runNow {
			if _, err := sched.RunOnce(ctx); err != nil {
				return err
			}
		}

		sched.Start()
		fmt.Printf("Collecting on schedule %q, next run at %s\n", spec, sched.Next().Format("15:04:05"))
		fmt.Println("Press Ctrl+C to stop")

		<-ctx.Done()
		sched.Stop()
		_, err = sched.Last()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "", "Cron spec (default from config, e.g. \"@every 30m\")")
	scheduleCmd.Flags().BoolVar(&runNow, "now", true, "Run once immediately before scheduling")
}

// --- query commands ---

var articleLimit int

var articlesCmd = &cobra.Command{
	Use:   "articles [term]",
	Short: "List recent articles, or articles matching a term",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		limit := articleLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.Query.ArticleLimit
		}

		items, err := newEngine(db).ResolveArticles(cmd.Context(), termArg(args), limit, cfg.Query.RecentDays)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No articles found.")
			return nil
		}
		for i, it := range items {
			fmt.Printf("%2d. %s\n    %s\n", i+1, it.Title, it.Link)
		}
		return nil
	},
}

func init() {
	articlesCmd.Flags().IntVarP(&articleLimit, "limit", "n", 20, "Maximum number of articles")
}

var keywordDays int

var keywordsCmd = &cobra.Command{
	Use:   "keywords [term]",
	Short: "Rank trending keywords, optionally around a term",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		days := keywordDays
		if !cmd.Flags().Changed("days") {
			days = cfg.Query.RecentDays
		}

		top, err := newEngine(db).ResolveTopKeywords(cmd.Context(), termArg(args), days)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			fmt.Println("No keywords found.")
			return nil
		}
		for i, c := range top {
			kw := c.Keyword
			if kw == "" {
				kw = "(none)"
			}
			fmt.Printf("%2d. %-20s %d\n", i+1, kw, c.Count)
		}
		return nil
	},
}

func init() {
	keywordsCmd.Flags().IntVarP(&keywordDays, "days", "d", 3, "Recency window in days (0 for all)")
}

var showCmd = &cobra.Command{
	Use:   "show [link]",
	Short: "Show the stored record for an article link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		a, err := db.GetArticleByLink(cmd.Context(), strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("no article stored for %s", args[0])
		}

		fmt.Printf("[%d] %s\n", a.ID, a.Title)
		fmt.Printf("  Link: %s\n", a.Link)
		fmt.Printf("  Tokens: %s\n", a.ExtractedTokens)
		fmt.Printf("  Top keyword: %s\n", a.TopKeyword)
		if a.InsertedAt != nil {
			fmt.Printf("  Collected: %s\n", a.InsertedAt.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("  Collected: unknown")
		}
		return nil
	},
}

func termArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newTokenizer() *keywords.Tokenizer {
	return keywords.NewTokenizer(cfg.Text.Stopwords)
}

func newEngine(db *database.DB) *merge.Engine {
	opts := merge.Options{
		AlwaysFetchLive: cfg.Query.AlwaysFetchLive,
		FetchTimeout:    cfg.Search.Timeout,
	}
	return merge.New(db, liveSource(), newTokenizer(), keywords.NewExpander(cfg.Text.Synonyms), opts, log)
}

// liveSource returns the search source selected by search.provider.
func liveSource() collect.Source {
	switch cfg.Search.Provider {
	case "newsapi":
		client := collect.NewNewsAPIClient(cfg.Search.NewsAPI.APIKeyEnv, cfg.Search.NewsAPI.Language, cfg.Search.Timeout)
		if !client.IsConfigured() {
			log.Warnw("NewsAPI key not set, live search disabled", "env", cfg.Search.NewsAPI.APIKeyEnv)
		}
		return client
	default:
		return collect.NewSearchFeed(collect.NewFeedClient(cfg.Search.Timeout), cfg.Search.URLTemplate)
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "trendcrawler.db")
	return database.Open(dbPath)
}
