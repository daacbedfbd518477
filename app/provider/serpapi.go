package provider

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

const (
	serpAPISource     = "Google Jobs"
	serpAPIPageSize   = 10
	maxHighlightParts = 2
	maxHighlightItems = 3
)

type SerpAPIConfig struct {
	APIKey    string
	BaseURL   string
	Country   string
	Language  string
	UserAgent string
	Timeout   time.Duration
	Rate      float64
	Burst     int
}

// SerpAPI queries the Google Jobs engine through serpapi.com.
type SerpAPI struct {
	cfg        SerpAPIConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewSerpAPI(cfg SerpAPIConfig, httpClient *http.Client) *SerpAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cmp.Or(cfg.Timeout, 30*time.Second)}
	}
	cfg.BaseURL = cmp.Or(cfg.BaseURL, "https://serpapi.com/search")
	cfg.Country = cmp.Or(cfg.Country, "us")
	cfg.Language = cmp.Or(cfg.Language, "en")
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &SerpAPI{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		now:        time.Now,
	}
}

func (s *SerpAPI) Name() string {
	return "serpapi"
}

type serpAPIResponse struct {
	Error       string       `json:"error"`
	JobsResults []serpAPIJob `json:"jobs_results"`
}

type serpAPIJob struct {
	JobID        string `json:"job_id"`
	Title        string `json:"title"`
	CompanyName  string `json:"company_name"`
	Location     string `json:"location"`
	Via          string `json:"via"`
	Description  string `json:"description"`
	ShareLink    string `json:"share_link"`
	ApplyOptions []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"apply_options"`
	DetectedExtensions struct {
		PostedAt     string `json:"posted_at"`
		ScheduleType string `json:"schedule_type"`
	} `json:"detected_extensions"`
	JobHighlights []struct {
		Title string   `json:"title"`
		Items []string `json:"items"`
	} `json:"job_highlights"`
}

func (s *SerpAPI) Search(ctx context.Context, q Query) ([]jobs.Record, error) {
	if s.cfg.APIKey == "" {
		return nil, errs.New(errs.ErrProviderUnavailable, "serpapi key is not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.ErrProviderUnavailable, err, "serpapi rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.buildURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrProviderUnavailable, err, "serpapi request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.New(errs.ErrProviderUnavailable, "serpapi returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errs.Wrap(errs.ErrProviderUnavailable, err, "failed to decode serpapi response")
	}
	if payload.Error != "" {
		return nil, errs.New(errs.ErrProviderUnavailable, "serpapi error: %s", payload.Error)
	}

	records := make([]jobs.Record, 0, len(payload.JobsResults))
	for _, job := range payload.JobsResults {
		records = append(records, s.toRecord(job))
	}
	return jobs.NormalizeAll(records), nil
}

func (s *SerpAPI) buildURL(q Query) string {
	params := url.Values{}
	params.Set("engine", "google_jobs")
	params.Set("q", q.Keyword)
	params.Set("api_key", s.cfg.APIKey)
	params.Set("google_domain", "google.com")
	params.Set("gl", cmp.Or(q.Country, s.cfg.Country))
	params.Set("hl", cmp.Or(q.Language, s.cfg.Language))
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.Page > 1 {
		params.Set("start", strconv.Itoa((q.Page-1)*serpAPIPageSize))
	}
	return s.cfg.BaseURL + "?" + params.Encode()
}

func (s *SerpAPI) toRecord(job serpAPIJob) jobs.Record {
	link := ""
	if len(job.ApplyOptions) > 0 {
		link = job.ApplyOptions[0].Link
	}

	return jobs.Record{
		ID:          job.JobID,
		Title:       job.Title,
		Company:     job.CompanyName,
		Location:    cmp.Or(job.Location, "N/A"),
		Description: s.describe(job),
		URL:         cmp.Or(link, job.ShareLink),
		PostDate:    parsePostedAt(job.DetectedExtensions.PostedAt, s.now()),
		Source:      cmp.Or(strings.TrimPrefix(job.Via, "via "), serpAPISource),
		ExtractText: extractionText(job),
	}
}

// extractionText is the full description, title and every highlight, which
// is where Google Jobs usually lists degree and experience requirements.
func extractionText(job serpAPIJob) string {
	parts := []string{job.Description, job.Title}
	for _, h := range job.JobHighlights {
		parts = append(parts, h.Title)
		parts = append(parts, h.Items...)
	}
	return strings.Join(parts, "\n")
}

// describe appends the first highlight sections to the truncated description.
func (s *SerpAPI) describe(job serpAPIJob) string {
	var b strings.Builder
	b.WriteString(truncateWithEllipsis(job.Description, 500))

	parts := 0
	for _, h := range job.JobHighlights {
		if parts == maxHighlightParts {
			break
		}
		parts++
		if len(h.Items) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(h.Title)
		b.WriteString(":")
		for i, item := range h.Items {
			if i == maxHighlightItems {
				break
			}
			b.WriteString("\n• ")
			b.WriteString(item)
		}
	}
	return b.String()
}

var relativeAge = regexp.MustCompile(`(\d+)\+?\s*(hour|day|week|month)`)

// parsePostedAt turns SerpAPI's posted_at into YYYY-MM-DD. Unknown forms
// yield "".
func parsePostedAt(postedAt string, now time.Time) string {
	p := strings.ToLower(strings.TrimSpace(postedAt))
	if p == "" {
		return ""
	}

	if t, err := time.Parse(time.RFC3339, postedAt); err == nil {
		return t.Format(time.DateOnly)
	}
	if t, err := time.Parse(time.DateOnly, postedAt); err == nil {
		return t.Format(time.DateOnly)
	}

	switch {
	case strings.Contains(p, "today"), strings.Contains(p, "just now"):
		return now.Format(time.DateOnly)
	case strings.Contains(p, "yesterday"):
		return now.AddDate(0, 0, -1).Format(time.DateOnly)
	}

	m := relativeAge.FindStringSubmatch(p)
	if m == nil {
		return ""
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour).Format(time.DateOnly)
	case "day":
		return now.AddDate(0, 0, -n).Format(time.DateOnly)
	case "week":
		return now.AddDate(0, 0, -7*n).Format(time.DateOnly)
	default:
		return now.AddDate(0, 0, -30*n).Format(time.DateOnly)
	}
}
