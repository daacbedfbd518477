package provider

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

const maxFeedBytes = 10 << 20

// RSS searches job board feeds (RSS or Atom) for items mentioning the
// keyword. A feed that fails to load is skipped; the search fails only
// when every feed fails.
type RSS struct {
	feeds      []string
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

func NewRSS(feeds []string, httpClient *http.Client, userAgent string) *RSS {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RSS{
		feeds:      feeds,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

func (r *RSS) Name() string {
	return "rss"
}

func (r *RSS) Search(ctx context.Context, q Query) ([]jobs.Record, error) {
	if len(r.feeds) == 0 {
		return nil, errs.New(errs.ErrProviderUnavailable, "no rss feeds configured")
	}

	needle := strings.ToLower(strings.TrimSpace(q.Keyword))
	location := strings.ToLower(strings.TrimSpace(q.Location))

	var results []jobs.Record
	var failures []error
	for _, feedURL := range r.feeds {
		feed, err := r.fetch(ctx, feedURL)
		if err != nil {
			slog.Warn("Failed to load job feed", "url", feedURL, "error", err)
			failures = append(failures, err)
			continue
		}

		for _, item := range feed.Items {
			record := r.toRecord(feed, item)
			if !matches(record, item.Categories, needle) {
				continue
			}
			if location != "" && !strings.Contains(strings.ToLower(record.Location+" "+record.Description), location) {
				continue
			}
			results = append(results, record)
		}
	}

	if len(failures) == len(r.feeds) {
		return nil, errs.Wrap(errs.ErrProviderUnavailable, errors.Join(failures...), "all rss feeds failed")
	}

	return jobs.Dedupe(jobs.NormalizeAll(results)), nil
}

func (r *RSS) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	feed, err := r.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func (r *RSS) toRecord(feed *gofeed.Feed, item *gofeed.Item) jobs.Record {
	record := jobs.Record{
		ID:          cmp.Or(item.GUID, item.Link),
		Title:       cleanText(item.Title),
		Description: truncateWithEllipsis(htmlToText(cmp.Or(item.Description, item.Content)), 500),
		URL:         item.Link,
		Source:      cmp.Or(cleanText(feed.Title), "RSS"),
	}

	if item.PublishedParsed != nil {
		record.PostDate = item.PublishedParsed.Format(time.DateOnly)
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		record.Company = item.Authors[0].Name
	}

	// Boards commonly title items as "Company: Role" or "Role at Company".
	if record.Company == "" {
		if company, role, ok := strings.Cut(record.Title, ": "); ok {
			record.Company, record.Title = company, role
		} else if role, company, ok := strings.Cut(record.Title, " at "); ok {
			record.Company, record.Title = company, role
		}
	}

	for _, key := range []string{"location", "region"} {
		if v := extensionValue(item, key); v != "" {
			record.Location = v
			break
		}
	}

	return record
}

func matches(r jobs.Record, categories []string, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.Title), needle) ||
		strings.Contains(strings.ToLower(r.Description), needle) ||
		strings.Contains(strings.ToLower(r.Company), needle) {
		return true
	}
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c), needle) {
			return true
		}
	}
	return false
}

func extensionValue(item *gofeed.Item, name string) string {
	for _, ns := range item.Extensions {
		if exts, ok := ns[name]; ok && len(exts) > 0 {
			return cleanText(exts[0].Value)
		}
	}
	return ""
}
