package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
)

type errorBody struct {
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindSecurity:
		return http.StatusForbidden
	case errs.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error body. Storage and unknown
// failures are logged in full but reported with a generic message.
func respondError(c *gin.Context, err error) {
	body := errorBody{
		Code:      errs.ErrStorage.Code,
		Kind:      string(errs.KindStorage),
		Message:   "internal storage error",
		RequestID: requestID(c),
	}
	if e, ok := errs.As(err); ok {
		body.Code = e.Code
		body.Kind = string(e.Kind)
		if e.Kind != errs.KindStorage {
			body.Message = e.Message
		}
	}

	status := statusFor(errs.Kind(body.Kind))
	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("Request failed", "path", c.FullPath(), "request_id", body.RequestID, "error", err)
	case body.Kind == string(errs.KindSecurity):
		slog.Warn("Request rejected", "path", c.Request.URL.Path, "client", c.ClientIP(), "request_id", body.RequestID, "error", err)
	default:
		slog.Debug("Request rejected", "path", c.FullPath(), "request_id", body.RequestID, "error", err)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, errs.New(errs.ErrInvalidRequest, format, args...))
}
