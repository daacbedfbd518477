package tasks

import (
	"time"

	"github.com/mattanmr/job-posting-aggregator/app/database"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// CycleResult is what one collection cycle reports to its caller.
type CycleResult struct {
	ID            string                    `json:"id"`
	Trigger       Trigger                   `json:"trigger"`
	Status        database.CollectionStatus `json:"status"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
	TotalJobs     int                       `json:"total_jobs"`
	Keywords      []database.KeywordResult  `json:"keywords"`
	Filename      string                    `json:"filename,omitempty"`
	Error         string                    `json:"error,omitempty"`
	RetentionDrop []string                  `json:"retention_deleted,omitempty"`
}

func (r *CycleResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *CycleResult) historyEntry() database.HistoryEntry {
	return database.HistoryEntry{
		ID:            r.ID,
		Timestamp:     r.FinishedAt,
		Trigger:       string(r.Trigger),
		Status:        r.Status,
		TotalJobs:     r.TotalJobs,
		KeywordsCount: len(r.Keywords),
		Keywords:      r.Keywords,
		Filename:      r.Filename,
		Error:         r.Error,
		DurationMs:    r.Duration().Milliseconds(),
	}
}

// RunStatus is a point-in-time view of the coordinator.
type RunStatus struct {
	LastCollection *time.Time `json:"last_collection"`
	NextCollection *time.Time `json:"next_collection"`
	InProgress     bool       `json:"collection_in_progress"`
	IntervalHours  int        `json:"interval_hours"`
}
