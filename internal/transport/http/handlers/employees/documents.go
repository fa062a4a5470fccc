package employeehandler

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/employee"
	"hrdash/internal/transport/http/api"
	"hrdash/internal/transport/http/middleware"
	"hrdash/internal/transport/http/shared"
)

const (
	uploadField = "file"
	// multipartOverhead leaves room for the form boundaries around the file.
	multipartOverhead = 1 << 20
)

// allowedDocumentTypes is the upload gate allow-list, matched against the
// sniffed content rather than the client's Content-Type.
var allowedDocumentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/jpeg",
	"image/png",
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reqID := middleware.GetRequestID(r.Context())
	docType := chi.URLParam(r, "docType")
	if _, err := p.Schema.DocumentKind(docType); err != nil {
		shared.WriteError(w, r, h.Log, err, "upload_failed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload or file too large", reqID)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "missing_file", "a file is required in the \"file\" field", reqID)
		return
	}
	defer file.Close()
	if header.Size > h.MaxUploadBytes {
		api.Fail(w, http.StatusBadRequest, "file_too_large", "file exceeds the maximum upload size", reqID)
		return
	}
	if header.Size == 0 {
		api.Fail(w, http.StatusBadRequest, "empty_file", "empty file is not allowed", reqID)
		return
	}

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_file", "could not read uploaded file", reqID)
		return
	}
	if !mimetype.EqualsAny(detected.String(), allowedDocumentTypes...) {
		api.Fail(w, http.StatusBadRequest, "invalid_file_type", "only PDF, DOC, DOCX, JPEG and PNG files are allowed", reqID)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_file", "could not read uploaded file", reqID)
		return
	}

	rec, slot, err := p.Documents.Upload(r.Context(), id, docType, employee.Upload{
		Filename: header.Filename,
		MimeType: detected.String(),
		Content:  file,
	})
	h.Metrics.DocumentOp(p.Schema.Project, "upload", err)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "upload_failed")
		return
	}
	h.Log.WithFields(logrus.Fields{
		"project":    p.Schema.Project,
		"employeeId": id,
		"docType":    docType,
		"size":       slot.Size,
	}).Info("document uploaded")
	api.SuccessMessage(w, "file uploaded", map[string]any{
		"id":       rec.ID,
		"docType":  docType,
		"filename": slot.Filename,
		"filepath": slot.Filepath,
		"mimetype": slot.MimeType,
		"filesize": slot.Size,
	}, reqID)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, slot, err := p.Documents.Download(r.Context(), id, chi.URLParam(r, "docType"))
	h.Metrics.DocumentOp(p.Schema.Project, "download", err)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "download_failed")
		return
	}
	defer f.Close()

	modified := time.Time{}
	if info, err := f.Stat(); err == nil {
		modified = info.ModTime()
	}
	contentType := slot.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": slot.Filename}))
	if slot.Size > 0 {
		w.Header().Set("X-File-Size", strconv.FormatInt(slot.Size, 10))
	}
	http.ServeContent(w, r, slot.Filename, modified, f)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docType := chi.URLParam(r, "docType")
	rec, err := p.Documents.Remove(r.Context(), id, docType)
	h.Metrics.DocumentOp(p.Schema.Project, "remove", err)
	if err != nil {
		shared.WriteError(w, r, h.Log, err, "delete_file_failed")
		return
	}
	api.SuccessMessage(w, "file deleted", rec, middleware.GetRequestID(r.Context()))
}
