package database

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mattanmr/job-posting-aggregator/app/cfg"
	"github.com/mattanmr/job-posting-aggregator/app/errs"
)

const scheduleFileName = "schedule.yml"

type ScheduleRepository struct {
	db     *DB
	mu     sync.RWMutex
	config ScheduleConfig
}

// NewScheduleRepository loads schedule.yml, falling back to defaultHours
// when the file is missing or holds an out-of-range value.
func NewScheduleRepository(db *DB, defaultHours int) (*ScheduleRepository, error) {
	r := &ScheduleRepository{
		db: db,
		config: ScheduleConfig{
			IntervalHours: defaultHours,
			MinInterval:   cfg.MinIntervalHours,
			MaxInterval:   cfg.MaxIntervalHours,
		},
	}

	var stored ScheduleConfig
	found, err := db.readYAML(scheduleFileName, &stored)
	if err != nil {
		return nil, err
	}
	if found {
		if inRange(stored.IntervalHours) {
			r.config.IntervalHours = stored.IntervalHours
			r.config.UpdatedAt = stored.UpdatedAt
		} else {
			slog.Warn("Stored schedule interval out of range, using default", "stored", stored.IntervalHours, "default", defaultHours)
		}
	}

	return r, nil
}

func (r *ScheduleRepository) Get() ScheduleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

func (r *ScheduleRepository) Update(intervalHours int) (ScheduleConfig, error) {
	if !inRange(intervalHours) {
		return ScheduleConfig{}, errs.New(errs.ErrOutOfRange, "interval_hours must be between %d and %d", cfg.MinIntervalHours, cfg.MaxIntervalHours)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	next := r.config
	next.IntervalHours = intervalHours
	next.UpdatedAt = &now

	if err := r.db.writeYAML(scheduleFileName, next); err != nil {
		return ScheduleConfig{}, errs.Wrap(errs.ErrStorage, err, "failed to save schedule")
	}
	r.config = next

	return next, nil
}

func inRange(hours int) bool {
	return hours >= cfg.MinIntervalHours && hours <= cfg.MaxIntervalHours
}
