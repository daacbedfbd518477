package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
	"github.com/mattanmr/job-posting-aggregator/app/snapshot"
)

type fakeProvider struct {
	search func(ctx context.Context, q provider.Query) ([]jobs.Record, error)
	calls  atomic.Int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(ctx context.Context, q provider.Query) ([]jobs.Record, error) {
	p.calls.Add(1)
	return p.search(ctx, q)
}

type failingWriter struct {
	panics bool
}

func (w failingWriter) Write([]jobs.Record) (snapshot.Snapshot, error) {
	if w.panics {
		panic("disk exploded")
	}
	return snapshot.Snapshot{}, errs.New(errs.ErrStorage, "disk full")
}

func (failingWriter) ApplyRetention(int, int) ([]string, error) { return nil, nil }

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(typ, _ string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, typ)
}

type fixture struct {
	db        *database.DB
	keywords  *database.KeywordRepository
	schedule  *database.ScheduleRepository
	runState  *database.RunStateRepository
	history   *database.HistoryRepository
	snapshots *snapshot.Store
	provider  *fakeProvider
	events    *recordingPublisher
}

func newFixture(t *testing.T, keywords ...string) *fixture {
	t.Helper()

	db, err := database.NewConnection(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, events: &recordingPublisher{}}
	f.keywords, err = database.NewKeywordRepository(db)
	require.NoError(t, err)
	f.schedule, err = database.NewScheduleRepository(db, 12)
	require.NoError(t, err)
	f.runState = database.NewRunStateRepository(db)
	f.history, err = database.NewHistoryRepository(db, 100)
	require.NoError(t, err)
	f.snapshots, err = snapshot.NewStore(db.Path(snapshot.DirName))
	require.NoError(t, err)

	for _, k := range keywords {
		_, err := f.keywords.Add(k)
		require.NoError(t, err)
	}

	f.provider = &fakeProvider{search: func(context.Context, provider.Query) ([]jobs.Record, error) {
		return nil, nil
	}}
	return f
}

func (f *fixture) scheduler(writer SnapshotWriter, config Config) *Scheduler {
	if writer == nil {
		writer = f.snapshots
	}
	return NewScheduler(Deps{
		Keywords:  f.keywords,
		Schedule:  f.schedule,
		RunState:  f.runState,
		History:   f.history,
		Snapshots: writer,
		Provider:  f.provider,
		Events:    f.events,
	}, config)
}

func postings(prefix string, n int) []jobs.Record {
	out := make([]jobs.Record, n)
	for i := range out {
		out[i] = jobs.Record{
			ID:          prefix + string(rune('0'+i)),
			Title:       prefix + " engineer",
			Description: "Requires a Bachelor's degree and 3-5 years of experience",
		}
	}
	return out
}

func TestRunCycle_PartialFailure(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.provider.search = func(_ context.Context, q provider.Query) ([]jobs.Record, error) {
		if q.Keyword == "a" {
			return nil, errs.New(errs.ErrProviderUnavailable, "boom")
		}
		return postings("b", 3), nil
	}
	s := f.scheduler(nil, Config{Concurrency: 2})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, database.StatusPartial, result.Status)
	assert.Equal(t, 3, result.TotalJobs)
	require.Len(t, result.Keywords, 2)
	assert.Equal(t, "a", result.Keywords[0].Keyword)
	assert.NotEmpty(t, result.Keywords[0].Error)
	assert.Equal(t, 0, result.Keywords[0].JobCount)
	assert.Equal(t, "b", result.Keywords[1].Keyword)
	assert.Empty(t, result.Keywords[1].Error)
	assert.Equal(t, 3, result.Keywords[1].JobCount)

	snaps, err := f.snapshots.List()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, result.Filename, snaps[0].Filename)
	assert.Equal(t, 3, snaps[0].JobCount)

	preview, err := f.snapshots.Preview(snaps[0].Filename, 10)
	require.NoError(t, err)
	require.Len(t, preview.Rows, 3)
	for _, row := range preview.Rows {
		assert.Equal(t, "b", row[0])
		assert.Contains(t, row, "Bachelor's Degree")
		assert.Contains(t, row, "3-5 years")
	}

	entry := f.history.Latest()
	require.NotNil(t, entry)
	assert.Equal(t, database.StatusPartial, entry.Status)
	assert.Equal(t, "manual", entry.Trigger)
	assert.Equal(t, 2, entry.KeywordsCount)
	assert.Equal(t, result.Filename, entry.Filename)

	status := s.Status()
	assert.False(t, status.InProgress)
	require.NotNil(t, status.LastCollection)
	require.NotNil(t, status.NextCollection)
	assert.Equal(t, 12*time.Hour, status.NextCollection.Sub(*status.LastCollection))

	assert.Equal(t, []string{events.CollectionStarted, events.CollectionFinished}, f.events.types)
}

func TestRunCycle_AlreadyRunning(t *testing.T) {
	f := newFixture(t, "golang")
	release := make(chan struct{})
	entered := make(chan struct{})
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		close(entered)
		<-release
		return postings("g", 1), nil
	}
	s := f.scheduler(nil, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.RunCycle(context.Background(), TriggerScheduled)
		assert.NoError(t, err)
	}()
	<-entered

	before := s.Status()
	assert.True(t, before.InProgress)

	result, err := s.RunCycle(context.Background(), TriggerManual)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, errs.ErrAlreadyRunning))
	assert.Equal(t, before, s.Status())

	close(release)
	<-done
	assert.False(t, s.Status().InProgress)
	assert.Len(t, f.history.List(10), 1)
}

func TestRunCycle_ConcurrentTriggersRunOnce(t *testing.T) {
	f := newFixture(t, "golang")
	release := make(chan struct{})
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		<-release
		return postings("g", 1), nil
	}
	s := f.scheduler(nil, Config{})

	const callers = 8
	var wg sync.WaitGroup
	var ran, rejected atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.RunCycle(context.Background(), TriggerManual)
			if errors.Is(err, errs.ErrAlreadyRunning) {
				rejected.Add(1)
				return
			}
			ran.Add(1)
		}()
	}
	close(start)

	require.Eventually(t, func() bool { return rejected.Load() == callers-1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestRunCycle_NoKeywords(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(nil, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, database.StatusSuccess, result.Status)
	assert.Equal(t, 0, result.TotalJobs)
	assert.Empty(t, result.Filename)
	assert.Equal(t, 0, f.snapshots.Count())

	entry := f.history.Latest()
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.KeywordsCount)
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestRunCycle_ZeroResultsWritesNoFile(t *testing.T) {
	f := newFixture(t, "golang", "rust")
	s := f.scheduler(nil, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, database.StatusSuccess, result.Status)
	assert.Empty(t, result.Filename)
	assert.Equal(t, 0, f.snapshots.Count())
}

func TestRunCycle_DedupesPostingsWithoutIDs(t *testing.T) {
	f := newFixture(t, "golang")
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		return []jobs.Record{
			{Title: "Go Developer", Source: "Board"},
			{Title: "Go Developer", Source: "Board"},
			{Title: "Go Architect", Source: "Board"},
		}, nil
	}
	s := f.scheduler(nil, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalJobs)
	require.Len(t, result.Keywords, 1)
	assert.Equal(t, 2, result.Keywords[0].JobCount)
}

func TestRunCycle_AllKeywordsFail(t *testing.T) {
	f := newFixture(t, "golang", "rust")
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		return nil, errs.New(errs.ErrProviderUnavailable, "down")
	}
	s := f.scheduler(nil, Config{})

	result, err := s.RunCycle(context.Background(), TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, database.StatusFailure, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, f.snapshots.Count())
	assert.NotNil(t, s.Status().LastCollection)
}

func TestRunCycle_StorageFailureReleasesFlag(t *testing.T) {
	f := newFixture(t, "golang")
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		return postings("g", 2), nil
	}
	s := f.scheduler(failingWriter{}, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStorage))
	assert.Equal(t, database.StatusFailure, result.Status)
	assert.False(t, s.Status().InProgress)

	entry := f.history.Latest()
	require.NotNil(t, entry)
	assert.Equal(t, database.StatusFailure, entry.Status)
	assert.Contains(t, entry.Error, "disk full")

	_, err = s.RunCycle(context.Background(), TriggerManual)
	assert.False(t, errors.Is(err, errs.ErrAlreadyRunning))
}

func TestRunCycle_PanicReleasesFlag(t *testing.T) {
	f := newFixture(t, "golang")
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		return postings("g", 1), nil
	}
	s := f.scheduler(failingWriter{panics: true}, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Equal(t, database.StatusFailure, result.Status)
	assert.False(t, s.Status().InProgress)
	assert.Equal(t, database.StatusFailure, f.history.Latest().Status)
}

func TestRunCycle_ProviderPanicIsPerKeyword(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.provider.search = func(_ context.Context, q provider.Query) ([]jobs.Record, error) {
		if q.Keyword == "a" {
			panic("bad parser")
		}
		return postings("b", 1), nil
	}
	s := f.scheduler(nil, Config{})

	result, err := s.RunCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPartial, result.Status)
	assert.Equal(t, 1, result.TotalJobs)
}

func TestRunCycle_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, "golang")
	f.provider.search = func(ctx context.Context, _ provider.Query) ([]jobs.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return postings("g", 1), nil
	}
	s := f.scheduler(nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunCycle(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSuccess, result.Status)
}

func TestSetInterval(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := f.scheduler(nil, Config{Now: func() time.Time { return now }})
	s.Start()
	defer s.Stop()

	_, err := s.SetInterval(0)
	assert.True(t, errors.Is(err, errs.ErrOutOfRange))
	assert.Equal(t, 12, s.Status().IntervalHours)
	assert.Equal(t, now.Add(12*time.Hour), *s.Status().NextCollection)

	updated, err := s.SetInterval(6)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.IntervalHours)

	status := s.Status()
	assert.Equal(t, 6, status.IntervalHours)
	assert.Equal(t, now.Add(6*time.Hour), *status.NextCollection)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestStart_RestoresLastCollection(t *testing.T) {
	f := newFixture(t)
	last := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.runState.Save(database.RunState{LastCollection: &last}))

	s := f.scheduler(nil, Config{})
	s.Start()
	defer s.Stop()

	status := s.Status()
	require.NotNil(t, status.LastCollection)
	assert.True(t, status.LastCollection.Equal(last))
	require.NotNil(t, status.NextCollection)
	assert.True(t, status.NextCollection.After(time.Now()))
}

func TestScheduledTriggerFires(t *testing.T) {
	f := newFixture(t, "golang")
	_, err := f.schedule.Update(1)
	require.NoError(t, err)
	f.provider.search = func(context.Context, provider.Query) ([]jobs.Record, error) {
		return postings("g", 1), nil
	}

	s := f.scheduler(nil, Config{IntervalUnit: time.Second})
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		entry := f.history.Latest()
		return entry != nil && entry.Trigger == string(TriggerScheduled)
	}, 5*time.Second, 50*time.Millisecond)
}
