package api

import (
	"time"

	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
	"github.com/mattanmr/job-posting-aggregator/app/snapshot"
	"github.com/mattanmr/job-posting-aggregator/app/tasks"
)

type SnapshotStoreInterface interface {
	List() ([]snapshot.Snapshot, error)
	Count() int
	Resolve(filename string) (string, error)
	Preview(filename string, maxRows int) (*snapshot.Preview, error)
	Delete(filename string) error
}

var _ SnapshotStoreInterface = (*snapshot.Store)(nil)

type Handler struct {
	keywords  database.KeywordStore
	schedule  database.ScheduleStore
	history   database.HistoryStore
	snapshots SnapshotStoreInterface
	collector tasks.CollectorInterface
	provider  provider.Provider
	fallback  provider.Provider
	extractor *jobs.Extractor
	hub       *events.Hub
	version   string
	startedAt time.Time
}

type addKeywordRequest struct {
	Keyword string `json:"keyword"`
}

type updateScheduleRequest struct {
	IntervalHours *int `json:"interval_hours"`
}

type searchResponse struct {
	Keyword  string        `json:"keyword"`
	Source   string        `json:"source"`
	Fallback bool          `json:"fallback"`
	Count    int           `json:"count"`
	Jobs     []jobs.Record `json:"jobs"`
}

type keywordsResponse struct {
	Keywords []string `json:"keywords"`
	Count    int      `json:"count"`
}
