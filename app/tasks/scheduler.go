package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mattanmr/job-posting-aggregator/app/cfg"
	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
)

var _ CollectorInterface = (*Scheduler)(nil)

type Deps struct {
	Keywords  database.KeywordStore
	Schedule  database.ScheduleStore
	RunState  database.RunStateStore
	History   database.HistoryStore
	Snapshots SnapshotWriter
	Provider  provider.Provider
	Extractor *jobs.Extractor
	Events    events.Publisher
}

type Config struct {
	Concurrency         int
	RetentionMaxFiles   int
	RetentionMaxAgeDays int
	Country             string
	Language            string
	// IntervalUnit is the length of one configured interval step. Hours in
	// production.
	IntervalUnit time.Duration
	Now          func() time.Time
}

func ConfigFrom(c *cfg.Cfg) Config {
	return Config{
		Concurrency:         c.CollectConcurrency,
		RetentionMaxFiles:   c.RetentionMaxFiles,
		RetentionMaxAgeDays: c.RetentionMaxAgeDays,
		Country:             c.Country,
		Language:            c.Language,
		IntervalUnit:        time.Hour,
	}
}

type Scheduler struct {
	deps   Deps
	config Config
	cron   *cron.Cron

	running atomic.Bool

	mu      sync.Mutex
	entryID cron.EntryID
	last    *time.Time
	next    *time.Time
}

func NewScheduler(deps Deps, config Config) *Scheduler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Concurrency > cfg.MaxCollectConcurrency {
		config.Concurrency = cfg.MaxCollectConcurrency
	}
	if config.IntervalUnit <= 0 {
		config.IntervalUnit = time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if deps.Extractor == nil {
		deps.Extractor = jobs.NewExtractor()
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}

	logger := cronLogger{logger: slog.Default()}
	return &Scheduler{
		deps:   deps,
		config: config,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
	}
}

func (s *Scheduler) Start() {
	state, err := s.deps.RunState.Load()
	if err != nil {
		slog.Warn("Failed to load run state, starting fresh", "error", err)
	}

	s.mu.Lock()
	s.last = state.LastCollection
	s.mu.Unlock()

	s.cron.Start()
	interval := s.interval()
	s.reschedule(s.config.Now(), interval)

	slog.Info("Scheduler started", "interval", interval, "concurrency", s.config.Concurrency)
}

// Stop halts the timer and waits for a scheduled cycle in flight.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return RunStatus{
		LastCollection: copyTime(s.last),
		NextCollection: copyTime(s.next),
		InProgress:     s.running.Load(),
		IntervalHours:  s.deps.Schedule.Get().IntervalHours,
	}
}

// SetInterval persists a new interval and moves the next firing to
// now + interval. A cycle in flight is not touched.
func (s *Scheduler) SetInterval(hours int) (database.ScheduleConfig, error) {
	config, err := s.deps.Schedule.Update(hours)
	if err != nil {
		return config, err
	}

	s.reschedule(s.config.Now(), s.interval())
	slog.Info("Collection interval updated", "interval_hours", config.IntervalHours)
	return config, nil
}

// RunCycle runs one collection across all keywords. A second caller while
// a cycle is running gets ErrAlreadyRunning. The returned error is set
// only when the cycle failed to persist its snapshot; keyword failures are
// reported in the result.
func (s *Scheduler) RunCycle(ctx context.Context, trigger Trigger) (*CycleResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errs.New(errs.ErrAlreadyRunning, "a collection cycle is already running, retry later")
	}
	defer s.running.Store(false)

	// Once started a cycle runs to completion.
	ctx = context.WithoutCancel(ctx)
	requestID := events.RequestID(ctx)

	result := &CycleResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.config.Now(),
		Keywords:  []database.KeywordResult{},
	}

	slog.Info("Collection started", "id", result.ID, "trigger", trigger)
	s.deps.Events.Publish(events.CollectionStarted, requestID, map[string]string{
		"id":      result.ID,
		"trigger": string(trigger),
	})

	err := s.safeCollect(ctx, result)
	s.finish(result)

	s.deps.Events.Publish(events.CollectionFinished, requestID, result)
	return result, err
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunCycle(context.Background(), TriggerScheduled); err != nil {
		if errs.KindOf(err) == errs.KindConflict {
			slog.Info("Skipping scheduled collection, previous cycle still running")
			return
		}
		slog.Error("Scheduled collection failed", "error", err)
	}
}

func (s *Scheduler) safeCollect(ctx context.Context, result *CycleResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Collection panicked", "id", result.ID, "panic", r, "stack", string(debug.Stack()))
			result.Status = database.StatusFailure
			result.Error = fmt.Sprintf("internal error: %v", r)
			err = fmt.Errorf("collection panicked: %v", r)
		}
	}()
	return s.collect(ctx, result)
}

type keywordOutcome struct {
	records []jobs.Record
	err     error
}

func (s *Scheduler) collect(ctx context.Context, result *CycleResult) error {
	keywords := s.deps.Keywords.List()
	if len(keywords) == 0 {
		slog.Info("No keywords configured, nothing to collect")
		result.Status = database.StatusSuccess
		return nil
	}

	outcomes := make([]keywordOutcome, len(keywords))
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)
	for i, keyword := range keywords {
		g.Go(func() error {
			outcomes[i] = s.collectKeyword(ctx, keyword)
			return nil
		})
	}
	_ = g.Wait()

	var records []jobs.Record
	failed := 0
	for i, keyword := range keywords {
		out := outcomes[i]
		kr := database.KeywordResult{Keyword: keyword, JobCount: len(out.records)}
		if out.err != nil {
			failed++
			kr.Error = out.err.Error()
		}
		result.Keywords = append(result.Keywords, kr)
		records = append(records, out.records...)
	}
	result.TotalJobs = len(records)

	switch {
	case failed == len(keywords):
		result.Status = database.StatusFailure
		result.Error = "all keywords failed"
	case failed > 0:
		result.Status = database.StatusPartial
	default:
		result.Status = database.StatusSuccess
	}

	if len(records) > 0 {
		snap, err := s.deps.Snapshots.Write(records)
		if err != nil {
			slog.Error("Failed to write snapshot", "id", result.ID, "error", err)
			result.Status = database.StatusFailure
			result.Error = err.Error()
			return err
		}
		result.Filename = snap.Filename
	}

	deleted, err := s.deps.Snapshots.ApplyRetention(s.config.RetentionMaxFiles, s.config.RetentionMaxAgeDays)
	if err != nil {
		slog.Warn("Retention sweep failed", "error", err)
	}
	result.RetentionDrop = deleted

	return nil
}

func (s *Scheduler) collectKeyword(ctx context.Context, keyword string) (out keywordOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Keyword collection panicked", "keyword", keyword, "panic", r)
			out = keywordOutcome{err: fmt.Errorf("internal error: %v", r)}
		}
	}()

	found, err := s.deps.Provider.Search(ctx, provider.Query{
		Keyword:  keyword,
		Country:  s.config.Country,
		Language: s.config.Language,
		Page:     1,
	})
	if err != nil {
		slog.Warn("Keyword collection failed", "keyword", keyword, "provider", s.deps.Provider.Name(), "error", err)
		return keywordOutcome{err: err}
	}

	found = jobs.Dedupe(jobs.NormalizeAll(found))
	records := make([]jobs.Record, 0, len(found))
	for _, r := range found {
		r = s.deps.Extractor.Enrich(r)
		r.Keyword = keyword
		records = append(records, r)
	}

	slog.Debug("Keyword collected", "keyword", keyword, "jobs", len(records))
	return keywordOutcome{records: records}
}

// finish records the cycle and advances the run state. It runs for every
// cycle that got past the in-progress check, failed ones included.
func (s *Scheduler) finish(result *CycleResult) {
	now := s.config.Now()
	result.FinishedAt = now

	s.mu.Lock()
	s.last = &now
	s.mu.Unlock()
	s.reschedule(now, s.interval())

	if err := s.deps.RunState.Save(database.RunState{LastCollection: &now}); err != nil {
		slog.Error("Failed to save run state", "error", err)
	}
	if err := s.deps.History.Append(result.historyEntry()); err != nil {
		slog.Error("Failed to append collection history", "id", result.ID, "error", err)
	}

	slog.Info("Collection finished",
		"id", result.ID,
		"status", result.Status,
		"jobs", result.TotalJobs,
		"keywords", len(result.Keywords),
		"file", result.Filename,
		"duration", result.Duration())
}

// reschedule replaces the timer entry so the next firing is from + interval.
func (s *Scheduler) reschedule(from time.Time, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.runScheduled))

	next := from.Add(interval)
	s.next = &next
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(s.deps.Schedule.Get().IntervalHours) * s.config.IntervalUnit
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
