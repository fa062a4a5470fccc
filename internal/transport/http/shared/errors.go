package shared

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/certificate"
	"hrdash/internal/domain/employee"
	"hrdash/internal/platform/validation"
	"hrdash/internal/requestctx"
	"hrdash/internal/transport/http/api"
)

// WriteError maps a domain error to its status code. Anything it does not
// recognize is logged and reported as a 500 with fallbackCode.
func WriteError(w http.ResponseWriter, r *http.Request, log *logrus.Entry, err error, fallbackCode string) {
	requestID := requestctx.GetRequestID(r.Context())
	if verr, ok := employee.AsValidation(err); ok {
		FailValidation(w, requestID, []validation.Issue{{Field: verr.Field, Reason: verr.Message}})
		return
	}

	switch {
	case errors.Is(err, employee.ErrInvalidDocumentKind):
		api.Fail(w, http.StatusBadRequest, "invalid_document_kind", err.Error(), requestID)
	case errors.Is(err, employee.ErrNotInactive):
		api.Fail(w, http.StatusBadRequest, "not_inactive", "record is not inactive", requestID)
	case errors.Is(err, employee.ErrRestoreRequiresContractChange):
		api.Fail(w, http.StatusBadRequest, "contract_change_required", "must update contract to restore", requestID)
	case errors.Is(err, employee.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, certificate.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "certificate not found", requestID)
	case errors.Is(err, certificate.ErrEmployeeNotFound):
		api.Fail(w, http.StatusNotFound, "employee_not_found", "employee not found", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).WithField("requestId", requestID).Error("request timed out")
		api.Fail(w, http.StatusGatewayTimeout, "timeout", "operation timed out", requestID)
	case errors.Is(err, employee.ErrStorage):
		log.WithError(err).WithField("requestId", requestID).Error("document storage failed")
		api.Fail(w, http.StatusInternalServerError, "storage_error", "failed to store document", requestID)
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"requestId": requestID,
			"method":    r.Method,
			"path":      r.URL.Path,
		}).Error("request failed")
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", requestID)
	}
}
