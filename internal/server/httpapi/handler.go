// Package httpapi exposes the report pipeline to external callers over
// JSON/HTTP: on-demand generation, queries, resend, and the batch
// entrypoint used by external scheduling infrastructure.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/insightly/internal/common"
	"github.com/dmitrijs2005/insightly/internal/logging"
	"github.com/dmitrijs2005/insightly/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// ReportAPI is the slice of the orchestrator the HTTP layer needs.
type ReportAPI interface {
	RunForUser(ctx context.Context, userID string, force bool) (*models.Report, error)
	RunBatch(ctx context.Context) (*models.BatchSummary, error)
	ResendReport(ctx context.Context, userID, reportID string) error
	GetReport(ctx context.Context, userID, reportID string) (*models.Report, error)
	ListReports(ctx context.Context, userID string, limit int) ([]*models.Report, error)
}

// Handler provides the HTTP handlers for the report API.
type Handler struct {
	svc    ReportAPI
	logger logging.Logger
}

// NewHandler creates a Handler backed by the given report service.
func NewHandler(svc ReportAPI, logger logging.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrNoTransport):
		Error(w, http.StatusServiceUnavailable, "no mail transport configured")
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// RunForUser handles POST /api/users/{userID}/reports. It runs the pipeline
// synchronously and propagates failures directly to the caller.
func (h *Handler) RunForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	force := r.URL.Query().Get("force") == "true"

	rep, err := h.svc.RunForUser(r.Context(), userID, force)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, rep)
}

// GetReport handles GET /api/users/{userID}/reports/{reportID}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "reportID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, rep)
}

// ListReports handles GET /api/users/{userID}/reports?limit=N.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	reports, err := h.svc.ListReports(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	JSON(w, http.StatusOK, reports)
}

// ResendReport handles POST /api/users/{userID}/reports/{reportID}/resend.
func (h *Handler) ResendReport(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ResendReport(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "reportID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// RunBatch handles POST /api/batch/run: the parameterless scheduled
// entrypoint for external cron infrastructure. Per-user failures are inside
// the summary, not the HTTP status.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunBatch(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}
