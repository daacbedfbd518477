package provider

import (
	"context"

	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

// Query is one provider search. Empty locale fields fall back to the
// provider's defaults.
type Query struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location,omitempty"`
	Country  string `json:"country,omitempty"`
	Language string `json:"language,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// Provider searches one job source. Errors are transient: callers either
// fall back to another provider or skip the keyword.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]jobs.Record, error)
}
