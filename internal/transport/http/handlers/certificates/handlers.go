package certificatehandler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/certificate"
	"hrdash/internal/transport/http/api"
	"hrdash/internal/transport/http/middleware"
	"hrdash/internal/transport/http/shared"
)

type Service interface {
	List(ctx context.Context, employeeID int64) ([]certificate.Certificate, error)
	Get(ctx context.Context, id int64) (certificate.Certificate, error)
	Create(ctx context.Context, in certificate.Input) (certificate.Certificate, error)
	Update(ctx context.Context, id int64, in certificate.Input) (certificate.Certificate, error)
	Delete(ctx context.Context, id int64) error
}

type Handler struct {
	Services map[string]Service
	Log      *logrus.Entry
}

func NewHandler(services map[string]Service, log *logrus.Entry) *Handler {
	return &Handler{Services: services, Log: log.WithField("component", "certificates")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sertifikat", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

// certificateRequest accepts the legacy user_id key as well as employee_id.
type certificateRequest struct {
	UserID     int64  `json:"user_id"`
	EmployeeID int64  `json:"employee_id"`
	Title      string `json:"title"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to"`
}

func (c certificateRequest) input() certificate.Input {
	employeeID := c.EmployeeID
	if employeeID == 0 {
		employeeID = c.UserID
	}
	return certificate.Input{EmployeeID: employeeID, Title: c.Title, ValidFrom: c.ValidFrom, ValidTo: c.ValidTo}
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request) (Service, bool) {
	svc, ok := h.Services[strings.ToLower(chi.URLParam(r, "project"))]
	if !ok {
		api.Fail(w, http.StatusNotFound, "unknown_project", "project not found", middleware.GetRequestID(r.Context()))
		return nil, false
	}
	return svc, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	employeeID := v.PositiveInt("user_id", r.URL.Query().Get("user_id"), 0)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	certs, err := svc.List(r.Context(), int64(employeeID))
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "certificates_failed")
		return
	}
	api.Success(w, certs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cert, err := svc.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "certificate_failed")
		return
	}
	api.Success(w, cert, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	var payload certificateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	cert, err := svc.Create(r.Context(), payload.input())
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "certificate_create_failed")
		return
	}
	api.WriteJSON(w, http.StatusCreated, api.Envelope{
		Success:   true,
		Message:   "certificate created",
		Data:      cert,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload certificateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	cert, err := svc.Update(r.Context(), id, payload.input())
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "certificate_update_failed")
		return
	}
	api.SuccessMessage(w, "certificate updated", cert, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := svc.Delete(r.Context(), id); err != nil {
		shared.WriteError(w, r, h.Log, err, "certificate_delete_failed")
		return
	}
	api.SuccessMessage(w, "certificate deleted", map[string]any{"id": id}, middleware.GetRequestID(r.Context()))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer", middleware.GetRequestID(r.Context()))
		return 0, false
	}
	return id, true
}
