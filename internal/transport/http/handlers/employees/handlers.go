package employeehandler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/employee"
	"hrdash/internal/domain/history"
	"hrdash/internal/domain/importer"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/platform/metrics"
	"hrdash/internal/platform/storage"
	"hrdash/internal/platform/validation"
	"hrdash/internal/transport/http/api"
	"hrdash/internal/transport/http/middleware"
	"hrdash/internal/transport/http/shared"
)

type Contracts interface {
	ListActive(ctx context.Context) ([]employee.Record, error)
	ListInactive(ctx context.Context) ([]employee.Record, error)
	Get(ctx context.Context, id int64) (employee.Record, error)
	Create(ctx context.Context, data map[string]any) (employee.Record, []string, error)
	Update(ctx context.Context, id int64, data map[string]any, actor string) (employee.Record, error)
	SetInactive(ctx context.Context, id int64, reason string) (employee.Record, error)
	Restore(ctx context.Context, id int64, data map[string]any, actor string) (employee.Record, error)
	Delete(ctx context.Context, id int64) (employee.Record, error)
	ContractHistory(ctx context.Context, id int64) ([]history.Entry, error)
	SweepExpired(ctx context.Context) (employee.SweepResult, error)
}

type Documents interface {
	Upload(ctx context.Context, id int64, rawKind string, upload employee.Upload) (employee.Record, employee.DocumentSlot, error)
	Download(ctx context.Context, id int64, rawKind string) (storage.File, employee.DocumentSlot, error)
	Remove(ctx context.Context, id int64, rawKind string) (employee.Record, error)
}

type Importer interface {
	Import(ctx context.Context, filename string, r io.Reader, opts importer.Options) (importer.Result, error)
}

type Jobs interface {
	RunNow(ctx context.Context, jobType, project string, run jobs.RunFunc) (any, error)
}

// Project bundles the services of one enabled project.
type Project struct {
	Schema    employee.Schema
	Contracts Contracts
	Documents Documents
	Importer  Importer
}

type Handler struct {
	Projects       map[string]Project
	Jobs           Jobs
	Metrics        *metrics.Collector
	Log            *logrus.Entry
	MaxUploadBytes int64
	MaxImportBytes int64
}

func NewHandler(projects map[string]Project, jobsSvc Jobs, collector *metrics.Collector, log *logrus.Entry, maxUpload, maxImport int64) *Handler {
	return &Handler{
		Projects:       projects,
		Jobs:           jobsSvc,
		Metrics:        collector,
		Log:            log.WithField("component", "employees"),
		MaxUploadBytes: maxUpload,
		MaxImportBytes: maxImport,
	}
}

// RegisterRoutes mounts the routes under a router that already matched
// /{project}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.handleListActive)
		r.Get("/inactive", h.handleListInactive)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Put("/{id}/na", h.handleSetInactive)
		r.Put("/{id}/restore", h.handleRestore)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/history", h.handleHistory)
		r.Post("/{id}/upload/{docType}", h.handleUpload)
		r.Get("/{id}/download/{docType}", h.handleDownload)
		r.Delete("/{id}/delete-file/{docType}", h.handleDeleteFile)
	})
	r.Post("/upload-bulk", h.handleBulkUpload)
	r.Get("/check-expired", h.handleCheckExpired)
	r.Get("/template/csv", h.handleTemplateCSV)
	r.Get("/template/xlsx", h.handleTemplateXLSX)
}

func (h *Handler) project(w http.ResponseWriter, r *http.Request) (Project, bool) {
	slug := strings.ToLower(chi.URLParam(r, "project"))
	p, ok := h.Projects[slug]
	if !ok {
		api.Fail(w, http.StatusNotFound, "unknown_project", "project not found", middleware.GetRequestID(r.Context()))
		return Project{}, false
	}
	return p, true
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	records, err := p.Contracts.ListActive(r.Context())
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "list_failed")
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListInactive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	records, err := p.Contracts.ListInactive(r.Context())
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "list_failed")
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := p.Contracts.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "get_failed")
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	payload, ok := decodeObject(w, r)
	if !ok {
		return
	}
	rec, dropped, err := p.Contracts.Create(r.Context(), payload)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "create_failed")
		return
	}
	if len(dropped) > 0 {
		h.Log.WithFields(logrus.Fields{"project": p.Schema.Project, "droppedColumns": dropped}).Info("unknown fields ignored on create")
	}
	api.WriteJSON(w, http.StatusCreated, api.Envelope{
		Success:   true,
		Message:   "employee created",
		Data:      rec,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payload, ok := decodeObject(w, r)
	if !ok {
		return
	}
	actor := actorFrom(r, payload)
	rec, err := p.Contracts.Update(r.Context(), id, payload, actor)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "update_failed")
		return
	}
	api.SuccessMessage(w, "employee updated", rec, middleware.GetRequestID(r.Context()))
}

type deactivateRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *Handler) handleSetInactive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.Reason = strings.TrimSpace(payload.Reason)
	if issues := validation.Struct(payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	rec, err := p.Contracts.SetInactive(r.Context(), id, payload.Reason)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "deactivate_failed")
		return
	}
	api.SuccessMessage(w, "employee marked inactive", rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payload, ok := decodeObject(w, r)
	if !ok {
		return
	}
	actor := actorFrom(r, payload)
	rec, err := p.Contracts.Restore(r.Context(), id, payload, actor)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "restore_failed")
		return
	}
	api.SuccessMessage(w, "employee restored", rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := p.Contracts.Delete(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "delete_failed")
		return
	}
	api.SuccessMessage(w, "employee deleted", map[string]any{"id": rec.ID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := p.Contracts.ContractHistory(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "history_failed")
		return
	}
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer", middleware.GetRequestID(r.Context()))
		return 0, false
	}
	return id, true
}

// decodeObject reads a JSON object keeping numbers as json.Number so numeric
// columns keep their precision.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "request body must be a JSON object", middleware.GetRequestID(r.Context()))
		return nil, false
	}
	return payload, true
}

// actorFrom prefers a modified_by field in the body over the header actor.
// The field is removed so it never reaches the record columns.
func actorFrom(r *http.Request, payload map[string]any) string {
	actor := middleware.GetActor(r.Context())
	if raw, ok := payload["modified_by"]; ok {
		delete(payload, "modified_by")
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			actor = strings.TrimSpace(s)
		}
	}
	return actor
}
