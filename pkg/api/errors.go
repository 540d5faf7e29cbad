package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/llm"
	"github.com/lvlup-dev/ascent/pkg/proposal"
	"github.com/lvlup-dev/ascent/pkg/scheduler"
	"github.com/lvlup-dev/ascent/pkg/source"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// errorBody is the uniform error envelope for every non-2xx response.
type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// respondError maps a service error onto the HTTP envelope. Unclassified
// errors become an opaque 500; their detail goes to the log, keyed by the
// correlation ID, not to the client.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Unexpected service error",
			"error", err,
			"path", c.Request.URL.Path,
			"request_id", requestIDFrom(c),
		)
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorBody{
		Code:          code,
		Message:       message,
		CorrelationID: requestIDFrom(c),
	})
}

// badRequest rejects input the handler itself found invalid.
func (s *Server) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Code:          "validation",
		Message:       message,
		CorrelationID: requestIDFrom(c),
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, proposal.ErrInvalidDraft),
		errors.Is(err, custody.ErrCategoryNotAllowed),
		errors.Is(err, source.ErrHostNotAllowed):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, source.ErrNotRegistered):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, proposal.ErrAlreadyExecuted),
		errors.Is(err, proposal.ErrExecutionInFlight),
		errors.Is(err, custody.ErrCycleInFlight):
		return http.StatusConflict, "conflict"
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, llm.ErrTokensExhausted):
		return http.StatusTooManyRequests, "tokens_exhausted"
	case errors.Is(err, scheduler.ErrResourcesExhausted):
		return http.StatusServiceUnavailable, "resources_exhausted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
