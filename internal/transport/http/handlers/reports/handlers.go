package reportshandler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/reports"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/transport/http/api"
	"hrdash/internal/transport/http/middleware"
	"hrdash/internal/transport/http/shared"
)

type Reporter interface {
	Summary(ctx context.Context, days int) (reports.Summary, error)
	ExpiringPDF(ctx context.Context, w io.Writer, days int) (int, error)
}

type JobLister interface {
	List(ctx context.Context, project, jobType string, limit, offset int) ([]jobs.Run, error)
}

type Handler struct {
	Reporters map[string]Reporter
	Jobs      JobLister
	Log       *logrus.Entry
}

func NewHandler(reporters map[string]Reporter, jobList JobLister, log *logrus.Entry) *Handler {
	return &Handler{Reporters: reporters, Jobs: jobList, Log: log.WithField("component", "reports")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/expiring", h.handleExpiring)
	})
	r.Get("/jobs", h.handleJobRuns)
}

func (h *Handler) reporter(w http.ResponseWriter, r *http.Request) (string, Reporter, bool) {
	slug := strings.ToLower(chi.URLParam(r, "project"))
	rep, ok := h.Reporters[slug]
	if !ok {
		api.Fail(w, http.StatusNotFound, "unknown_project", "project not found", middleware.GetRequestID(r.Context()))
		return "", nil, false
	}
	return slug, rep, true
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, rep, ok := h.reporter(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	days := v.PositiveInt("days", r.URL.Query().Get("days"), reports.DefaultExpiringDays)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	summary, err := rep.Summary(r.Context(), days)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "summary_failed")
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

// handleExpiring renders into memory first so a failure can still be
// reported as JSON.
func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	slug, rep, ok := h.reporter(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	days := v.PositiveInt("days", r.URL.Query().Get("days"), reports.DefaultExpiringDays)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	var buf bytes.Buffer
	count, err := rep.ExpiringPDF(r.Context(), &buf, days)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "report_failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expiring_%s_%dd.pdf"`, slug, days))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Record-Count", strconv.Itoa(count))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.Log.WithError(err).WithField("project", slug).Warn("expiring report write failed")
	}
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	slug, _, ok := h.reporter(w, r)
	if !ok {
		return
	}
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	page := v.Pagination(r.URL.Query(), 20, 100)
	if v.Reject(w, reqID) {
		return
	}
	runs, err := h.Jobs.List(r.Context(), slug, r.URL.Query().Get("type"), page.Limit, page.Offset)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "job_runs_failed")
		return
	}
	api.Success(w, runs, reqID)
}
