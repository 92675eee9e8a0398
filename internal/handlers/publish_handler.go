package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/AGO523/node-news-notification/internal/enrich"
	"github.com/AGO523/node-news-notification/internal/logging"
	"github.com/AGO523/node-news-notification/internal/metrics"
	"github.com/AGO523/node-news-notification/internal/models"
	"github.com/AGO523/node-news-notification/internal/pipeline"
	"github.com/AGO523/node-news-notification/internal/ratelimit"
	"github.com/AGO523/node-news-notification/internal/store"
	"github.com/AGO523/node-news-notification/internal/tasks"
)

// Processor runs one push batch through the pipeline.
type Processor interface {
	Process(ctx context.Context, req *models.PushRequest) (*models.BatchOutcome, error)
}

// PublishHandler serves the push ingestion endpoints.
type PublishHandler struct {
	processor Processor
	limiter   ratelimit.RateLimiter
	runner    *tasks.Runner
	logger    *logging.Logger
}

// NewPublishHandler constructs a handler. limiter must not be nil (use
// ratelimit.NoopLimiter to disable throttling); runner may be nil.
func NewPublishHandler(processor Processor, limiter ratelimit.RateLimiter, runner *tasks.Runner, logger *logging.Logger) *PublishHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PublishHandler{
		processor: processor,
		limiter:   limiter,
		runner:    runner,
		logger:    logger,
	}
}

// HandlePublish handles POST /publish.
func (h *PublishHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method is not allowed")
		return
	}

	ctx := r.Context()
	callerIP := getClientIP(r)

	decision, err := h.limiter.Allow(ctx, callerIP)
	if err != nil {
		// Fail open: a broken limiter backend must not take ingestion down.
		h.logger.WarnContext(ctx, "rate limiter unavailable, admitting request",
			logging.IP(callerIP),
			logging.Error(err),
		)
		decision = ratelimit.Decision{Allowed: true}
	}
	if !decision.Allowed {
		metrics.BatchesTotal.WithLabelValues("rate_limited").Inc()
		seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	var req models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.BatchesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a messages array")
		return
	}
	defer r.Body.Close()

	outcome, err := h.processor.Process(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidRequest):
			metrics.BatchesTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a messages array")
		case errors.Is(err, pipeline.ErrForbidden):
			metrics.BatchesTotal.WithLabelValues("forbidden").Inc()
			writeError(w, http.StatusForbidden, "forbidden", "repository is not permitted")
		case errors.Is(err, store.ErrNotConfigured), errors.Is(err, enrich.ErrNotConfigured):
			metrics.BatchesTotal.WithLabelValues("error").Inc()
			h.logger.ErrorContext(ctx, "pipeline misconfigured", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "configuration_error", "service is not configured")
		default:
			metrics.BatchesTotal.WithLabelValues("error").Inc()
			h.logger.ErrorContext(ctx, "batch processing failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "batch processing failed")
		}
		return
	}

	metrics.BatchesTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, models.PublishResponse{
		Status:    "ok",
		Received:  outcome.Received,
		Processed: outcome.Processed,
		Skipped:   outcome.Skipped,
		Failed:    outcome.Failed,
	})
}

// Root handles GET / as a plain liveness probe.
func (h *PublishHandler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Health handles GET /healthz.
func (h *PublishHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /readyz.
func (h *PublishHandler) Ready(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if h.runner != nil {
		depth = h.runner.Depth()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"task_queue": depth,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	type errorBody struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
