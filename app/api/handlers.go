package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
	"github.com/mattanmr/job-posting-aggregator/app/tasks"
)

const sseKeepAlive = 25 * time.Second

func NewHandler(keywords database.KeywordStore, schedule database.ScheduleStore,
	history database.HistoryStore, snapshots SnapshotStoreInterface,
	collector tasks.CollectorInterface, searchProvider provider.Provider,
	hub *events.Hub, version string) *Handler {
	return &Handler{
		keywords:  keywords,
		schedule:  schedule,
		history:   history,
		snapshots: snapshots,
		collector: collector,
		provider:  searchProvider,
		fallback:  provider.NewMock(),
		extractor: jobs.NewExtractor(),
		hub:       hub,
		version:   version,
		startedAt: time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	status := h.collector.Status()

	c.JSON(http.StatusOK, gin.H{
		"status":                 "ok",
		"version":                h.version,
		"timestamp":              time.Now().In(time.Local).Format(time.RFC3339),
		"uptime":                 time.Since(h.startedAt).Round(time.Second).String(),
		"provider":               h.provider.Name(),
		"keywords":               h.keywords.Count(),
		"snapshots":              h.snapshots.Count(),
		"collection_in_progress": status.InProgress,
	})
}

func (h *Handler) SearchJobs(c *gin.Context) {
	keyword, err := database.ValidateKeyword(c.DefaultQuery("q", c.Query("keyword")))
	if err != nil {
		respondError(c, err)
		return
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			badRequest(c, "page must be a positive integer")
			return
		}
	}

	query := provider.Query{
		Keyword:  keyword,
		Location: c.Query("location"),
		Country:  c.Query("country"),
		Language: c.Query("language"),
		Page:     page,
	}

	source := h.provider.Name()
	usedFallback := false
	records, err := h.provider.Search(c.Request.Context(), query)
	if err != nil {
		slog.Warn("Search provider failed, answering from mock data", "provider", source, "keyword", keyword, "error", err)
		records, err = h.fallback.Search(c.Request.Context(), query)
		if err != nil {
			respondError(c, err)
			return
		}
		source = h.fallback.Name()
		usedFallback = true
	}

	results := make([]jobs.Record, 0, len(records))
	for _, r := range jobs.Dedupe(jobs.NormalizeAll(records)) {
		results = append(results, h.extractor.Enrich(r))
	}

	c.JSON(http.StatusOK, searchResponse{
		Keyword:  keyword,
		Source:   source,
		Fallback: usedFallback,
		Count:    len(results),
		Jobs:     results,
	})
}

func (h *Handler) ListKeywords(c *gin.Context) {
	keywords := h.keywords.List()
	c.JSON(http.StatusOK, keywordsResponse{Keywords: keywords, Count: len(keywords)})
}

func (h *Handler) AddKeyword(c *gin.Context) {
	var req addKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with a keyword field")
		return
	}

	keywords, err := h.keywords.Add(req.Keyword)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(events.KeywordsChanged, requestID(c), keywords)
	c.JSON(http.StatusCreated, keywordsResponse{Keywords: keywords, Count: len(keywords)})
}

func (h *Handler) RemoveKeyword(c *gin.Context) {
	keywords, err := h.keywords.Remove(c.Param("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(events.KeywordsChanged, requestID(c), keywords)
	c.JSON(http.StatusOK, keywordsResponse{Keywords: keywords, Count: len(keywords)})
}

func (h *Handler) ListSnapshots(c *gin.Context) {
	snapshots, err := h.snapshots.List()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"total":     len(snapshots),
	})
}

func (h *Handler) DownloadSnapshot(c *gin.Context) {
	filename := c.Param("filename")
	path, err := h.snapshots.Resolve(filename)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.FileAttachment(path, filename)
}

func (h *Handler) PreviewSnapshot(c *gin.Context) {
	maxRows := 0
	if raw := c.Query("max_rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "max_rows must be a positive integer")
			return
		}
		maxRows = n
	}

	preview, err := h.snapshots.Preview(c.Param("filename"), maxRows)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

func (h *Handler) DeleteSnapshot(c *gin.Context) {
	filename := c.Param("filename")
	if err := h.snapshots.Delete(filename); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("Snapshot deleted by request", "file", filename, "request_id", requestID(c))
	h.hub.Publish(events.SnapshotDeleted, requestID(c), gin.H{"filename": filename})
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetCollectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Status())
}

func (h *Handler) RunCollection(c *gin.Context) {
	result, err := h.collector.RunCycle(c.Request.Context(), tasks.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetCollectionHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := h.history.List(limit)
	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"count":    len(entries),
		"capacity": h.history.Capacity(),
	})
}

func (h *Handler) GetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.schedule.Get())
}

func (h *Handler) UpdateSchedule(c *gin.Context) {
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IntervalHours == nil {
		badRequest(c, "request body must be JSON with an integer interval_hours field")
		return
	}

	config, err := h.collector.SetInterval(*req.IntervalHours)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(events.ScheduleChanged, requestID(c), config)
	c.JSON(http.StatusOK, config)
}

// StreamEvents relays hub events to the client as server-sent events until
// the client goes away or the hub closes.
func (h *Handler) StreamEvents(c *gin.Context) {
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"request_id": requestID(c)})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
