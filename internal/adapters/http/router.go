// Package httpadapter exposes the query and admin surface of the retrieval
// engine.
package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
	"github.com/hyeonsoft/document-qa/internal/observability/metrics"
)

type RouterConfig struct {
	ServiceName string

	RateLimitRPS   float64
	RateLimitBurst int

	MaxInFlight     int
	BackpressureMax time.Duration
}

type Router struct {
	answerer ports.QueryAnswerer
	admin    ports.IndexAdmin
	queue    ports.ReindexQueue
	source   ports.DocumentSource
	metrics  *metrics.HTTPServerMetrics
	cfg      RouterConfig
}

func NewRouter(
	answerer ports.QueryAnswerer,
	admin ports.IndexAdmin,
	queue ports.ReindexQueue,
	source ports.DocumentSource,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api"
	}
	return &Router{
		answerer: answerer,
		admin:    admin,
		queue:    queue,
		source:   source,
		metrics:  serverMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/admin/reindex", rt.requestReindex)
	mux.HandleFunc("/v1/admin/index/status", rt.indexStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureMax)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	answer, err := rt.answerer.AnswerQuery(r.Context(), req.Query, req.TopK)
	if err != nil {
		rt.writeError(w, r, "answer query", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordCacheLookup(rt.cfg.ServiceName, answer.CacheHit)
		rt.metrics.RecordQuery(
			rt.cfg.ServiceName,
			string(answer.Mode),
			string(answer.Confidence),
			len(answer.Hits),
			answer.Degraded,
			time.Since(start),
		)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.source.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, "get document", err)
		return
	}
	// Page text stays internal; the API serves metadata only.
	doc.ExtractedText = ""
	writeJSON(w, http.StatusOK, doc)
}

// requestReindex mints the version id up front and hands the rebuild to the
// worker over the queue, so the id can be reported before the build runs.
func (rt *Router) requestReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	request := domain.ReindexRequest{
		VersionID:   "v-" + uuid.NewString(),
		Reason:      req.Reason,
		RequestedAt: time.Now().UTC(),
	}
	if err := rt.queue.PublishReindexRequested(r.Context(), request); err != nil {
		rt.writeError(w, r, "publish reindex request", err)
		return
	}

	slog.Info("reindex_requested",
		"request_id", requestIDFromContext(r.Context()),
		"version_id", request.VersionID,
		"reason", request.Reason,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"version_id": request.VersionID})
}

func (rt *Router) indexStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	status, err := rt.admin.Status(r.Context())
	if err != nil {
		rt.writeError(w, r, "index status", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.SetIndexDrift(status.Drift)
	}
	writeJSON(w, http.StatusOK, status)
}

// writeError logs the cause with the request id and responds with a generic
// message for the mapped status. Internal details never reach the client.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	logAttrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"operation", operation,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		slog.Error("request_failed", logAttrs...)
	} else {
		slog.Warn("request_failed", logAttrs...)
	}
	writeJSON(w, status, map[string]string{"error": errorMessageFor(status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
