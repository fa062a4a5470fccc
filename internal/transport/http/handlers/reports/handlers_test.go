package reportshandler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"hrdash/internal/domain/reports"
	"hrdash/internal/platform/jobs"
)

type fakeReporter struct {
	days int
}

func (f *fakeReporter) Summary(_ context.Context, days int) (reports.Summary, error) {
	f.days = days
	return reports.Summary{Project: "elnusa", Active: 4, Days: days}, nil
}

func (f *fakeReporter) ExpiringPDF(_ context.Context, w io.Writer, days int) (int, error) {
	f.days = days
	_, err := io.WriteString(w, "%PDF-1.3 fake")
	return 3, err
}

type fakeJobs struct {
	project, jobType string
	limit, offset    int
}

func (f *fakeJobs) List(_ context.Context, project, jobType string, limit, offset int) ([]jobs.Run, error) {
	f.project, f.jobType, f.limit, f.offset = project, jobType, limit, offset
	return []jobs.Run{{ID: 1, Project: project, JobType: jobs.JobExpirySweep, Status: jobs.StatusCompleted, StartedAt: time.Now()}}, nil
}

func setup() (http.Handler, *fakeReporter, *fakeJobs) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rep, jl := &fakeReporter{}, &fakeJobs{}
	h := NewHandler(map[string]Reporter{"elnusa": rep}, jl, logrus.NewEntry(logger))
	r := chi.NewRouter()
	r.Route("/{project}", h.RegisterRoutes)
	return r, rep, jl
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestExpiringReport(t *testing.T) {
	r, rep, _ := setup()

	rec := get(r, "/elnusa/reports/expiring?days=14")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="expiring_elnusa_14d.pdf"`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "3", rec.Header().Get("X-Record-Count"))
	require.Equal(t, 14, rep.days)

	require.Equal(t, http.StatusBadRequest, get(r, "/elnusa/reports/expiring?days=-1").Code)
	require.Equal(t, http.StatusNotFound, get(r, "/umran/reports/expiring").Code)
}

func TestSummaryDefaultsWindow(t *testing.T) {
	r, rep, _ := setup()
	rec := get(r, "/elnusa/reports/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, reports.DefaultExpiringDays, rep.days)
	require.Contains(t, rec.Body.String(), `"active":4`)
}

func TestJobRuns(t *testing.T) {
	r, _, jl := setup()
	rec := get(r, "/elnusa/jobs?type=expiry_sweep&limit=500&offset=40")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "elnusa", jl.project)
	require.Equal(t, jobs.JobExpirySweep, jl.jobType)
	require.Equal(t, 100, jl.limit)
	require.Equal(t, 40, jl.offset)
}

func TestJobRunsRejectsBadOffset(t *testing.T) {
	r, _, _ := setup()
	rec := get(r, "/elnusa/jobs?offset=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "validation_error")
}
