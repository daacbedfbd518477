package tasks

import (
	"context"

	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/snapshot"
)

// CollectorInterface is the coordinator as seen by the HTTP layer and main.
//
//	scheduler := NewScheduler(deps, config)
//	scheduler.Start()
//	defer scheduler.Stop()
//	result, err := scheduler.RunCycle(ctx, TriggerManual)
type CollectorInterface interface {
	Start()
	Stop()
	RunCycle(ctx context.Context, trigger Trigger) (*CycleResult, error)
	Status() RunStatus
	SetInterval(hours int) (database.ScheduleConfig, error)
}

// SnapshotWriter is the part of the snapshot store a cycle needs.
type SnapshotWriter interface {
	Write(records []jobs.Record) (snapshot.Snapshot, error)
	ApplyRetention(maxFiles, maxAgeDays int) ([]string, error)
}
