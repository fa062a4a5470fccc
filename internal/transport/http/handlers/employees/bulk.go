package employeehandler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/employee"
	"hrdash/internal/domain/importer"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/transport/http/api"
	"hrdash/internal/transport/http/middleware"
	"hrdash/internal/transport/http/shared"
)

func (h *Handler) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	strict := v.Bool("strict", r.URL.Query().Get("strict"))
	if v.Reject(w, reqID) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxImportBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.MaxImportBytes); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload or file too large", reqID)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "missing_file", "a CSV or XLSX file is required in the \"file\" field", reqID)
		return
	}
	defer file.Close()
	if header.Size > h.MaxImportBytes {
		api.Fail(w, http.StatusBadRequest, "file_too_large", "file exceeds the maximum import size", reqID)
		return
	}

	var result importer.Result
	run := func(ctx context.Context) (any, error) {
		var err error
		result, err = p.Importer.Import(ctx, header.Filename, file, importer.Options{Strict: strict})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"filename":       header.Filename,
			"success":        result.SuccessCount,
			"total":          result.Total,
			"failed":         len(result.Errors),
			"droppedColumns": result.DroppedColumns,
		}, nil
	}
	// The import outlives a client disconnect; Importer.Timeout bounds it.
	if h.Jobs != nil {
		_, err = h.Jobs.RunNow(context.WithoutCancel(r.Context()), jobs.JobBulkImport, p.Schema.Project, run)
	} else {
		_, err = run(context.WithoutCancel(r.Context()))
	}

	var rejected *importer.RejectedError
	switch {
	case errors.As(err, &rejected):
		api.FailWithDetails(w, http.StatusBadRequest, "import_rejected", rejected.Error(), rejected.Report, reqID)
		return
	case errors.Is(err, importer.ErrInvalidFile):
		api.Fail(w, http.StatusBadRequest, "invalid_file", err.Error(), reqID)
		return
	case err != nil:
		shared.WriteError(w, r, h.Log, err, "import_failed")
		return
	}

	h.Metrics.ImportedRows(p.Schema.Project, result.SuccessCount, len(result.Errors))
	h.Log.WithFields(logrus.Fields{
		"project":  p.Schema.Project,
		"filename": header.Filename,
		"success":  result.SuccessCount,
		"total":    result.Total,
	}).Info("bulk import finished")
	api.SuccessMessage(w, "bulk import finished", result, reqID)
}

func (h *Handler) handleTemplateCSV(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="template_`+p.Schema.Project+`.csv"`)
	if err := importer.WriteCSVTemplate(w, p.Schema, time.Now()); err != nil {
		h.Log.WithError(err).Warn("csv template write failed")
	}
}

func (h *Handler) handleTemplateXLSX(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="template_`+p.Schema.Project+`.xlsx"`)
	if err := importer.WriteXLSXTemplate(w, p.Schema, time.Now()); err != nil {
		h.Log.WithError(err).Warn("xlsx template write failed")
	}
}

// handleCheckExpired runs the expiry sweep for the project synchronously,
// recorded as a job run like the scheduled one.
func (h *Handler) handleCheckExpired(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var result employee.SweepResult
	run := func(ctx context.Context) (any, error) {
		var err error
		result, err = p.Contracts.SweepExpired(ctx)
		return result, err
	}
	var err error
	if h.Jobs != nil {
		_, err = h.Jobs.RunNow(context.WithoutCancel(r.Context()), jobs.JobExpirySweep, p.Schema.Project, run)
	} else {
		_, err = run(context.WithoutCancel(r.Context()))
	}
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "sweep_failed")
		return
	}
	h.Metrics.SweepDeactivated(p.Schema.Project, result.Deactivated)
	api.SuccessMessage(w, "expiry check finished", map[string]any{
		"count":       result.Deactivated,
		"checked":     result.Checked,
		"deactivated": result.Deactivated,
		"failed":      result.Failed,
		"records":     result.Records,
	}, middleware.GetRequestID(r.Context()))
}
