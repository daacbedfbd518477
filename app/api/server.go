package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/events"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	// Route on the raw path so encoded separators in a filename reach the
	// snapshot name validator instead of splitting the route.
	r.UseRawPath = true

	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("Handler panicked", "path", c.Request.URL.Path, "request_id", requestID(c), "panic", recovered)
		respondError(c, errs.New(errs.ErrStorage, "internal error"))
	}))

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+requestIDHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Disposition, "+requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	{
		api.GET("/search", handler.SearchJobs)

		api.GET("/keywords", handler.ListKeywords)
		api.POST("/keywords", handler.AddKeyword)
		api.DELETE("/keywords/:keyword", handler.RemoveKeyword)

		api.GET("/snapshots", handler.ListSnapshots)
		api.GET("/snapshots/:filename", handler.DownloadSnapshot)
		api.GET("/snapshots/:filename/preview", handler.PreviewSnapshot)
		api.DELETE("/snapshots/:filename", handler.DeleteSnapshot)

		api.GET("/collection/status", handler.GetCollectionStatus)
		api.POST("/collection/run", handler.RunCollection)
		api.GET("/collection/history", handler.GetCollectionHistory)

		api.GET("/schedule", handler.GetSchedule)
		api.PUT("/schedule", handler.UpdateSchedule)

		api.GET("/events", handler.StreamEvents)
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(events.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
			"request_id", requestID(c),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.Warn("HTTP request", attrs...)
			return
		}
		slog.Debug("HTTP request", attrs...)
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
