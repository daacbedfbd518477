package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
	"github.com/mattanmr/job-posting-aggregator/app/snapshot"
	"github.com/mattanmr/job-posting-aggregator/app/tasks"
)

type stubProvider struct {
	records []jobs.Record
	err     error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Search(context.Context, provider.Query) ([]jobs.Record, error) {
	return p.records, p.err
}

type testServer struct {
	router    *gin.Engine
	keywords  *database.KeywordRepository
	history   *database.HistoryRepository
	snapshots *snapshot.Store
	scheduler *tasks.Scheduler
	hub       *events.Hub
}

func newTestServer(t *testing.T, p provider.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewConnection(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keywords, err := database.NewKeywordRepository(db)
	require.NoError(t, err)
	schedule, err := database.NewScheduleRepository(db, 12)
	require.NoError(t, err)
	history, err := database.NewHistoryRepository(db, 100)
	require.NoError(t, err)
	snapshots, err := snapshot.NewStore(db.Path(snapshot.DirName))
	require.NoError(t, err)

	hub := events.NewHub()
	t.Cleanup(hub.Close)

	scheduler := tasks.NewScheduler(tasks.Deps{
		Keywords:  keywords,
		Schedule:  schedule,
		RunState:  database.NewRunStateRepository(db),
		History:   history,
		Snapshots: snapshots,
		Provider:  p,
		Events:    hub,
	}, tasks.Config{Concurrency: 2})

	handler := NewHandler(keywords, schedule, history, snapshots, scheduler, p, hub, "test")
	router := NewServer(handler)
	gin.SetMode(gin.TestMode)

	return &testServer{
		router:    router,
		keywords:  keywords,
		history:   history,
		snapshots: snapshots,
		scheduler: scheduler,
		hub:       hub,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, provider.NewMock())

	w := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.Equal(t, false, resp["collection_in_progress"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestKeywordsLifecycle(t *testing.T) {
	s := newTestServer(t, provider.NewMock())

	w := s.do(http.MethodPost, "/api/keywords", `{"keyword":"golang"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/keywords", `{"keyword":"data science"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/keywords", `{"keyword":"golang"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errs.ErrDuplicateKeyword.Code, decodeError(t, w).Code)

	w = s.do(http.MethodPost, "/api/keywords", `{"keyword":"rm -rf /"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, errs.ErrInvalidKeyword.Code, body.Code)
	assert.Equal(t, string(errs.KindValidation), body.Kind)
	assert.NotEmpty(t, body.RequestID)

	w = s.do(http.MethodPost, "/api/keywords", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/keywords", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list keywordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"golang", "data science"}, list.Keywords)

	w = s.do(http.MethodDelete, "/api/keywords/data%20science", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"golang"}, list.Keywords)

	w = s.do(http.MethodDelete, "/api/keywords/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, s.keywords.Count())
}

func TestSearch(t *testing.T) {
	records := []jobs.Record{
		{ID: "1", Title: "Go Developer", Description: "At least 4 years of Go. PhD preferred."},
		{ID: "1", Title: "Go Developer (duplicate)"},
		{ID: "2", Title: "Backend Engineer"},
	}
	s := newTestServer(t, stubProvider{records: records})

	w := s.do(http.MethodGet, "/api/search?q=golang", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stub", resp.Source)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "PhD/Doctorate", resp.Jobs[0].DiplomaRequired)
	assert.Equal(t, "4+ years", resp.Jobs[0].YearsExperience)

	w = s.do(http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/search?q=golang&page=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_DedupesPostingsWithoutIDs(t *testing.T) {
	s := newTestServer(t, stubProvider{records: []jobs.Record{
		{Title: "Go Developer", Source: "Board"},
		{Title: "Go Developer", Source: "Board"},
	}})

	w := s.do(http.MethodGet, "/api/search?q=golang", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "Board:Go Developer", resp.Jobs[0].ID)
}

func TestSearch_FallsBackToMock(t *testing.T) {
	s := newTestServer(t, stubProvider{err: errs.New(errs.ErrProviderUnavailable, "quota exceeded")})

	w := s.do(http.MethodGet, "/api/search?q=python", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Equal(t, "mock", resp.Source)
	assert.Equal(t, 3, resp.Count)
	for _, job := range resp.Jobs {
		assert.Equal(t, provider.MockSource, job.Source)
	}
}

func TestCollectionRunAndSnapshots(t *testing.T) {
	s := newTestServer(t, stubProvider{records: []jobs.Record{
		{ID: "a", Title: "Go Developer", Description: "Bachelor's degree and 3-5 years of experience"},
		{ID: "b", Title: "SRE"},
	}})
	_, err := s.keywords.Add("golang")
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/collection/run", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result tasks.CycleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, database.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.TotalJobs)
	require.NotEmpty(t, result.Filename)

	w = s.do(http.MethodGet, "/api/collection/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status tasks.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.InProgress)
	assert.NotNil(t, status.LastCollection)
	assert.NotNil(t, status.NextCollection)

	w = s.do(http.MethodGet, "/api/collection/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Entries []database.HistoryEntry `json:"entries"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Equal(t, 1, history.Count)
	assert.Equal(t, result.Filename, history.Entries[0].Filename)

	w = s.do(http.MethodGet, "/api/collection/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Snapshots []snapshot.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Snapshots, 1)
	assert.Equal(t, 2, list.Snapshots[0].JobCount)

	w = s.do(http.MethodGet, "/api/snapshots/"+result.Filename, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), result.Filename)
	assert.True(t, strings.HasPrefix(w.Body.String(), "keyword,id,title"))

	w = s.do(http.MethodGet, "/api/snapshots/"+result.Filename+"/preview?max_rows=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview snapshot.Preview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Len(t, preview.Rows, 1)
	assert.True(t, preview.HasMore)
	assert.Equal(t, 2, preview.TotalRows)

	w = s.do(http.MethodDelete, "/api/snapshots/"+result.Filename, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.snapshots.Count())

	w = s.do(http.MethodGet, "/api/snapshots/"+result.Filename, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotNameValidation(t *testing.T) {
	s := newTestServer(t, provider.NewMock())
	require.NoError(t, os.WriteFile(filepath.Join(s.snapshots.Root(), "notes.txt"), []byte("secret"), 0o644))

	tests := []struct {
		path   string
		status int
	}{
		{"/api/snapshots/notes.txt", http.StatusBadRequest},
		{"/api/snapshots/..%2F..%2Fetc%2Fpasswd", http.StatusBadRequest},
		{"/api/snapshots/jobs_collection_20250101_000000.csv%2F..%2Fx", http.StatusBadRequest},
		{"/api/snapshots/jobs_collection_20250101_000000.csv", http.StatusNotFound},
		{"/api/snapshots/jobs_collection_20250101_000000.csv/preview", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "secret")
		})
	}

	w := s.do(http.MethodGet, "/api/snapshots", "")
	assert.NotContains(t, w.Body.String(), "notes.txt")
}

func TestSchedule(t *testing.T) {
	s := newTestServer(t, provider.NewMock())

	w := s.do(http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	var config database.ScheduleConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &config))
	assert.Equal(t, 12, config.IntervalHours)
	assert.Equal(t, 1, config.MinInterval)
	assert.Equal(t, 336, config.MaxInterval)

	w = s.do(http.MethodPut, "/api/schedule", `{"interval_hours":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrOutOfRange.Code, decodeError(t, w).Code)

	w = s.do(http.MethodPut, "/api/schedule", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/schedule", `{"interval_hours":24}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/schedule", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &config))
	assert.Equal(t, 24, config.IntervalHours)

	w = s.do(http.MethodGet, "/api/collection/status", "")
	var status tasks.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 24, status.IntervalHours)
	require.NotNil(t, status.NextCollection)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *status.NextCollection, time.Minute)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, provider.NewMock())

	w := s.do(http.MethodOptions, "/api/keywords/golang", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t, provider.NewMock())
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return s.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	post, err := http.Post(srv.URL+"/api/keywords", "application/json", strings.NewReader(`{"keyword":"golang"}`))
	require.NoError(t, err)
	post.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if scanner.Text() == "event:"+events.KeywordsChanged {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a keywords_changed event")
}
