package database

import (
	"time"
)

type CollectionStatus string

const (
	StatusSuccess CollectionStatus = "success"
	StatusPartial CollectionStatus = "partial"
	StatusFailure CollectionStatus = "failure"
)

type KeywordResult struct {
	Keyword  string `json:"keyword"`
	JobCount int    `json:"job_count"`
	Error    string `json:"error,omitempty"`
}

// HistoryEntry records one attempted collection cycle.
type HistoryEntry struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Trigger       string           `json:"trigger"`
	Status        CollectionStatus `json:"status"`
	TotalJobs     int              `json:"total_jobs"`
	KeywordsCount int              `json:"keywords_count"`
	Keywords      []KeywordResult  `json:"keywords"`
	Filename      string           `json:"filename,omitempty"`
	Error         string           `json:"error,omitempty"`
	DurationMs    int64            `json:"duration_ms"`
}
