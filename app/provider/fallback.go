package provider

import (
	"context"
	"log/slog"

	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

// Fallback tries primary first and answers from secondary when primary
// fails or finds nothing.
type Fallback struct {
	primary   Provider
	secondary Provider
}

func NewFallback(primary, secondary Provider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *Fallback) Search(ctx context.Context, q Query) ([]jobs.Record, error) {
	records, err := f.primary.Search(ctx, q)
	if err == nil && len(records) > 0 {
		return records, nil
	}

	if err != nil {
		slog.Warn("Provider failed, using fallback", "provider", f.primary.Name(), "fallback", f.secondary.Name(), "keyword", q.Keyword, "error", err)
	} else {
		slog.Debug("Provider returned no results, using fallback", "provider", f.primary.Name(), "fallback", f.secondary.Name(), "keyword", q.Keyword)
	}

	fallback, ferr := f.secondary.Search(ctx, q)
	if ferr != nil {
		if err != nil {
			return nil, err
		}
		return records, nil
	}
	return fallback, nil
}
