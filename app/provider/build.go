package provider

import (
	"net/http"

	"github.com/mattanmr/job-posting-aggregator/app/cfg"
)

// Build assembles the provider chain from configuration: the configured
// provider, optionally backed by mock data, optionally behind a cache.
// A nil cache disables caching.
func Build(c *cfg.Cfg, cache ResultCache) Provider {
	httpClient := &http.Client{Timeout: c.ProviderTimeout}

	var p Provider
	switch c.ResolvedProvider() {
	case "serpapi":
		p = NewSerpAPI(SerpAPIConfig{
			APIKey:    c.SerpAPIKey,
			BaseURL:   c.SerpAPIURL,
			Country:   c.Country,
			Language:  c.Language,
			UserAgent: c.UserAgent,
			Timeout:   c.ProviderTimeout,
			Rate:      c.ProviderRate,
			Burst:     c.ProviderBurst,
		}, httpClient)
	case "rss":
		p = NewRSS(c.RSSFeeds, httpClient, c.UserAgent)
	default:
		return NewMock()
	}

	if cache != nil {
		p = NewCached(p, cache, c.CacheTTL)
	}
	if c.MockFallback {
		p = NewFallback(p, NewMock())
	}
	return p
}
