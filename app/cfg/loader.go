package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	MinIntervalHours = 1
	MaxIntervalHours = 336

	// Upper bound on concurrent provider calls within one cycle.
	MaxCollectConcurrency = 5
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DataDir string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory holding keywords, schedule, history and CSV snapshots"`

	// HTTP
	Port string `long:"port" env:"PORT" default:"8000" description:"HTTP server port"`

	// Search providers
	Provider        string   `long:"provider" env:"PROVIDER" default:"auto" choice:"auto" choice:"serpapi" choice:"rss" choice:"mock" description:"Search provider (auto picks serpapi when a key is set)"`
	SerpAPIKey      string   `long:"serpapi-key" env:"SERPAPI_KEY" description:"SerpAPI key for the Google Jobs engine"`
	SerpAPIURL      string   `long:"serpapi-url" env:"SERPAPI_URL" default:"https://serpapi.com/search" description:"SerpAPI endpoint"`
	Country         string   `long:"search-country" env:"SEARCH_COUNTRY" default:"us" description:"Default country code for searches"`
	Language        string   `long:"search-language" env:"SEARCH_LANGUAGE" default:"en" description:"Default language code for searches"`
	RSSFeeds        []string `long:"rss-feed" env:"RSS_FEEDS" env-delim:"," description:"Job board RSS feed URL (repeatable)"`
	ProviderTimeout int      `long:"provider-timeout" env:"PROVIDER_TIMEOUT" default:"30" description:"Provider request timeout in seconds"`
	ProviderRate    float64  `long:"provider-rate" env:"PROVIDER_RATE" default:"1" description:"Provider requests per second"`
	ProviderBurst   int      `long:"provider-burst" env:"PROVIDER_BURST" default:"2" description:"Provider request burst"`
	MockFallback    string   `long:"mock-fallback" env:"MOCK_FALLBACK" default:"true" description:"Fall back to mock data when the provider fails"`

	// Search cache
	RedisURL string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for caching search results (optional)"`
	CacheTTL int    `long:"cache-ttl" env:"CACHE_TTL" default:"3600" description:"Search cache TTL in seconds"`

	// Collection
	CollectConcurrency  int `long:"collect-concurrency" env:"COLLECT_CONCURRENCY" default:"3" description:"Concurrent provider calls per cycle (max 5)"`
	IntervalHours       int `long:"interval-hours" env:"INTERVAL_HOURS" default:"12" description:"Default collection interval in hours"`
	RetentionMaxFiles   int `long:"retention-max-files" env:"RETENTION_MAX_FILES" default:"50" description:"Snapshots kept by count (0 disables)"`
	RetentionMaxAgeDays int `long:"retention-max-age-days" env:"RETENTION_MAX_AGE_DAYS" default:"30" description:"Snapshots kept by age in days (0 disables)"`
	HistoryLimit        int `long:"history-limit" env:"HISTORY_LIMIT" default:"100" description:"Collection history entries kept"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Job Posting Aggregator/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFile   string `long:"log-file" env:"LOG_FILE" description:"Also write JSON logs to this file"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DataDir:             raw.DataDir,
		Port:                raw.Port,
		Provider:            raw.Provider,
		SerpAPIKey:          raw.SerpAPIKey,
		SerpAPIURL:          raw.SerpAPIURL,
		Country:             raw.Country,
		Language:            raw.Language,
		RSSFeeds:            compact(raw.RSSFeeds),
		ProviderTimeout:     time.Duration(raw.ProviderTimeout) * time.Second,
		ProviderRate:        raw.ProviderRate,
		ProviderBurst:       raw.ProviderBurst,
		MockFallback:        parseBool(raw.MockFallback, true),
		RedisURL:            raw.RedisURL,
		CacheTTL:            time.Duration(raw.CacheTTL) * time.Second,
		CollectConcurrency:  raw.CollectConcurrency,
		IntervalHours:       raw.IntervalHours,
		RetentionMaxFiles:   raw.RetentionMaxFiles,
		RetentionMaxAgeDays: raw.RetentionMaxAgeDays,
		HistoryLimit:        raw.HistoryLimit,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		LogFile:             raw.LogFile,
		Version:             GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Validate clamps soft limits and rejects settings the service cannot run with.
func (c *Cfg) Validate() error {
	var problems []string

	if c.IntervalHours < MinIntervalHours || c.IntervalHours > MaxIntervalHours {
		problems = append(problems, fmt.Sprintf("interval-hours must be %d..%d", MinIntervalHours, MaxIntervalHours))
	}
	if c.RetentionMaxFiles < 0 {
		problems = append(problems, "retention-max-files must be >= 0")
	}
	if c.RetentionMaxAgeDays < 0 {
		problems = append(problems, "retention-max-age-days must be >= 0")
	}
	if c.Provider == "serpapi" && c.SerpAPIKey == "" {
		problems = append(problems, "serpapi provider requires serpapi-key")
	}
	if c.Provider == "rss" && len(c.RSSFeeds) == 0 {
		problems = append(problems, "rss provider requires at least one rss-feed")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	if c.CollectConcurrency < 1 {
		c.CollectConcurrency = 1
	}
	if c.CollectConcurrency > MaxCollectConcurrency {
		c.CollectConcurrency = MaxCollectConcurrency
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 100
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
	if c.ProviderRate <= 0 {
		c.ProviderRate = 1
	}
	if c.ProviderBurst < 1 {
		c.ProviderBurst = 1
	}
	return nil
}

// ResolvedProvider maps "auto" to a concrete provider name.
func (c *Cfg) ResolvedProvider() string {
	if c.Provider != "auto" && c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.SerpAPIKey != "":
		return "serpapi"
	case len(c.RSSFeeds) > 0:
		return "rss"
	default:
		return "mock"
	}
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
