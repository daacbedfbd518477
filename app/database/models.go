package database

import (
	"time"
)

// ScheduleConfig is the collection interval with its fixed bounds.
type ScheduleConfig struct {
	IntervalHours int        `json:"interval_hours" yaml:"interval_hours"`
	MinInterval   int        `json:"min_interval" yaml:"-"`
	MaxInterval   int        `json:"max_interval" yaml:"-"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// RunState is the persisted part of the coordinator's run state. The next
// run is always derived from the interval at startup.
type RunState struct {
	LastCollection *time.Time `json:"last_collection,omitempty"`
}

type keywordsFile struct {
	Keywords []string `json:"keywords"`
}

type historyFile struct {
	Entries []HistoryEntry `json:"entries"`
}
