package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DefaultFeedURL is collected when neither a feeds file nor configured feeds
// name anything.
const DefaultFeedURL = "https://news.google.com/rss?hl=ko&gl=KR&ceid=KR:ko"

type Config struct {
	Sources Sources `yaml:"sources"`
	Search  Search  `yaml:"search"`
	Text    Text    `yaml:"text"`
	Query   Query   `yaml:"query"`
	Ingest  Ingest  `yaml:"ingest"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Sources struct {
	Feeds       []Feed `yaml:"feeds"`
	DefaultFeed string `yaml:"default_feed"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Search struct {
	Provider    string        `yaml:"provider"`
	URLTemplate string        `yaml:"url_template"`
	Timeout     time.Duration `yaml:"timeout"`
	NewsAPI     NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
}

// Text holds the tokenizer and query expansion tables. It is read once at
// startup and never mutated afterwards.
type Text struct {
	Stopwords []string       `yaml:"stopwords"`
	Synonyms  []SynonymGroup `yaml:"synonyms"`
}

// SynonymGroup maps a canonical term to its related terms.
type SynonymGroup struct {
	Key   string   `yaml:"key"`
	Terms []string `yaml:"terms"`
}

type Query struct {
	RecentDays      int  `yaml:"recent_days"`
	ArticleLimit    int  `yaml:"article_limit"`
	AlwaysFetchLive bool `yaml:"always_fetch_live"`
}

type Ingest struct {
	Limit    int           `yaml:"limit"`
	Sleep    time.Duration `yaml:"sleep"`
	Schedule string        `yaml:"schedule"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for trendcrawler.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "trendcrawler")
}

// DataDir returns the XDG data directory for trendcrawler.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "trendcrawler")
}

// ErrNoConfig is returned by ResolveConfigPath when no file was found in the
// implicit locations.
var ErrNoConfig = errors.New("no config file found")

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/trendcrawler/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", ErrNoConfig
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{DefaultFeed: DefaultFeedURL},
		Search: Search{
			Provider:    "googlenews",
			URLTemplate: "https://news.google.com/rss/search?q={query}&hl=ko&gl=KR&ceid=KR:ko",
			Timeout:     10 * time.Second,
			NewsAPI: NewsAPIConfig{
				APIKeyEnv: "NEWSAPI_KEY",
				Language:  "ko",
			},
		},
		Query: Query{
			RecentDays:   3,
			ArticleLimit: 20,
		},
		Ingest: Ingest{
			Limit:    50,
			Sleep:    500 * time.Millisecond,
			Schedule: "@every 30m",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// FeedURLs returns the configured feed URLs, or the default feed if none
// are configured.
func (c *Config) FeedURLs() []string {
	var urls []string
	for _, f := range c.Sources.Feeds {
		if f.URL != "" {
			urls = append(urls, f.URL)
		}
	}
	if len(urls) == 0 {
		def := c.Sources.DefaultFeed
		if def == "" {
			def = DefaultFeedURL
		}
		urls = []string{def}
	}
	return urls
}
