package cfg

import "time"

type Cfg struct {
	// Storage
	DataDir string

	// HTTP
	Port string

	// Search providers
	Provider        string
	SerpAPIKey      string
	SerpAPIURL      string
	Country         string
	Language        string
	RSSFeeds        []string
	ProviderTimeout time.Duration
	ProviderRate    float64
	ProviderBurst   int
	MockFallback    bool

	// Search cache
	RedisURL string
	CacheTTL time.Duration

	// Collection
	CollectConcurrency  int
	IntervalHours       int
	RetentionMaxFiles   int
	RetentionMaxAgeDays int
	HistoryLimit        int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFile   string
	Version   string
}
