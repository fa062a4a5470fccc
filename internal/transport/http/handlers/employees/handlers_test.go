package employeehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"hrdash/internal/domain/employee"
	"hrdash/internal/domain/importer"
	"hrdash/internal/platform/storage"
	"hrdash/internal/transport/http/middleware"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type fakeContracts struct {
	Contracts
	records   map[int64]employee.Record
	lastActor string
	lastData  map[string]any
	reason    string
	err       error
}

func (f *fakeContracts) ListActive(context.Context) ([]employee.Record, error) {
	out := make([]employee.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, f.err
}

func (f *fakeContracts) Get(_ context.Context, id int64) (employee.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return employee.Record{}, employee.ErrNotFound
	}
	return rec, nil
}

func (f *fakeContracts) Create(_ context.Context, data map[string]any) (employee.Record, []string, error) {
	if f.err != nil {
		return employee.Record{}, nil, f.err
	}
	f.lastData = data
	name, _ := data["name"].(string)
	return employee.Record{ID: 7, Name: name}, nil, nil
}

func (f *fakeContracts) Update(_ context.Context, id int64, data map[string]any, actor string) (employee.Record, error) {
	f.lastActor, f.lastData = actor, data
	if f.err != nil {
		return employee.Record{}, f.err
	}
	return f.Get(context.Background(), id)
}

func (f *fakeContracts) SetInactive(_ context.Context, id int64, reason string) (employee.Record, error) {
	f.reason = reason
	return f.Get(context.Background(), id)
}

func (f *fakeContracts) Restore(context.Context, int64, map[string]any, string) (employee.Record, error) {
	return employee.Record{}, f.err
}

func (f *fakeContracts) SweepExpired(context.Context) (employee.SweepResult, error) {
	return employee.SweepResult{Project: "elnusa", Checked: 2, Deactivated: 2, Records: []employee.SweepOutcome{
		{ID: 1, Outcome: employee.OutcomeDeactivated},
		{ID: 2, Outcome: employee.OutcomeDeactivated},
	}}, nil
}

type fakeDocuments struct {
	Documents
	upload  employee.Upload
	kind    string
	content []byte
	path    string
}

func (f *fakeDocuments) Upload(_ context.Context, id int64, kind string, up employee.Upload) (employee.Record, employee.DocumentSlot, error) {
	f.upload, f.kind = up, kind
	f.content, _ = io.ReadAll(up.Content)
	return employee.Record{ID: id}, employee.DocumentSlot{Filename: up.Filename, Filepath: "elnusa/cv-1.png", MimeType: up.MimeType, Size: int64(len(f.content))}, nil
}

func (f *fakeDocuments) Download(_ context.Context, id int64, kind string) (storage.File, employee.DocumentSlot, error) {
	if f.path == "" {
		return nil, employee.DocumentSlot{}, errors.Wrap(employee.ErrNotFound, "no cv document")
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, employee.DocumentSlot{}, err
	}
	return file, employee.DocumentSlot{Filename: "Ijazah Budi.pdf", Filepath: f.path, MimeType: "application/pdf", Size: 9}, nil
}

func (f *fakeDocuments) Remove(_ context.Context, id int64, kind string) (employee.Record, error) {
	return employee.Record{ID: id}, nil
}

type fakeImporter struct {
	result importer.Result
	err    error
	strict bool
	name   string
	ctx    context.Context
}

func (f *fakeImporter) Import(ctx context.Context, filename string, r io.Reader, opts importer.Options) (importer.Result, error) {
	f.ctx, f.strict, f.name = ctx, opts.Strict, filename
	_, _ = io.Copy(io.Discard, r)
	return f.result, f.err
}

type env struct {
	router    http.Handler
	contracts *fakeContracts
	documents *fakeDocuments
	importer  *fakeImporter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	schema, ok := employee.LookupProject("elnusa")
	require.True(t, ok)
	e := &env{
		contracts: &fakeContracts{records: map[int64]employee.Record{1: {ID: 1, Name: "Budi"}}},
		documents: &fakeDocuments{},
		importer:  &fakeImporter{},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := NewHandler(map[string]Project{
		"elnusa": {Schema: schema, Contracts: e.contracts, Documents: e.documents, Importer: e.importer},
	}, nil, nil, logrus.NewEntry(logger), 1<<20, 1<<20)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Actor)
	r.Route("/{project}", h.RegisterRoutes)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func multipartBody(t *testing.T, field, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestListActive(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/elnusa/users", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.True(t, body.Success)
	require.Contains(t, string(body.Data), `"name":"Budi"`)
}

func TestUnknownProject(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/nowhere/users", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "unknown_project", decode(t, rec).Error.Code)
}

func TestGetErrors(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/elnusa/users/abc", nil, nil).Code)
	rec := e.do(t, http.MethodGet, "/elnusa/users/99", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, decode(t, rec).Success)
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/elnusa/users", strings.NewReader(`{"name":"Sari","basic_salary":4500000.50}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, json.Number("4500000.50"), e.contracts.lastData["basic_salary"])

	e.contracts.err = &employee.ValidationError{Field: "contract_end_date", Message: "is required"}
	rec = e.do(t, http.MethodPost, "/elnusa/users", strings.NewReader(`{"name":"Sari"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "validation_error", body.Error.Code)
	require.Contains(t, string(body.Error.Details), "contract_end_date")

	rec = e.do(t, http.MethodPost, "/elnusa/users", strings.NewReader(`[1,2]`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUsesActor(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPut, "/elnusa/users/1", strings.NewReader(`{"phone":"0812"}`), map[string]string{middleware.HeaderModifiedBy: "rina"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "rina", e.contracts.lastActor)

	rec = e.do(t, http.MethodPut, "/elnusa/users/1", strings.NewReader(`{"phone":"0812","modified_by":"dewi"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dewi", e.contracts.lastActor)
	require.NotContains(t, e.contracts.lastData, "modified_by")
}

func TestUpdateClearingReasonNeedsContractChange(t *testing.T) {
	e := newEnv(t)
	e.contracts.err = employee.ErrRestoreRequiresContractChange
	rec := e.do(t, http.MethodPut, "/elnusa/users/1", strings.NewReader(`{"deactivation_reason":null}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "contract_change_required", decode(t, rec).Error.Code)
	require.Contains(t, e.contracts.lastData, "deactivation_reason")
	require.Nil(t, e.contracts.lastData["deactivation_reason"])
}

func TestSetInactive(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPut, "/elnusa/users/1/na", strings.NewReader(`{"reason":"  "}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", decode(t, rec).Error.Code)

	rec = e.do(t, http.MethodPut, "/elnusa/users/1/na", strings.NewReader(`{"reason":"Resign"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Resign", e.contracts.reason)

	rec = e.do(t, http.MethodPut, "/elnusa/users/42/na", strings.NewReader(`{"reason":"Resign"}`), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreErrors(t *testing.T) {
	e := newEnv(t)
	e.contracts.err = employee.ErrRestoreRequiresContractChange
	rec := e.do(t, http.MethodPut, "/elnusa/users/1/restore", strings.NewReader(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "contract_change_required", decode(t, rec).Error.Code)

	e.contracts.err = employee.ErrNotInactive
	rec = e.do(t, http.MethodPut, "/elnusa/users/1/restore", strings.NewReader(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "not_inactive", decode(t, rec).Error.Code)
}

func TestUploadGate(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartBody(t, "file", "foto.png", pngHeader)
	rec := e.do(t, http.MethodPost, "/elnusa/users/1/upload/cv", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "image/png", e.documents.upload.MimeType)
	require.Equal(t, pngHeader, e.documents.content)

	body, contentType = multipartBody(t, "file", "notes.txt", []byte("plain text is not allowed"))
	rec = e.do(t, http.MethodPost, "/elnusa/users/1/upload/cv", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_file_type", decode(t, rec).Error.Code)

	body, contentType = multipartBody(t, "file", "foto.png", pngHeader)
	rec = e.do(t, http.MethodPost, "/elnusa/users/1/upload/passport", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_document_kind", decode(t, rec).Error.Code)

	body, contentType = multipartBody(t, "other", "foto.png", pngHeader)
	rec = e.do(t, http.MethodPost, "/elnusa/users/1/upload/cv", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_file", decode(t, rec).Error.Code)
}

func TestDownload(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/elnusa/users/1/download/cv", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	path := filepath.Join(t.TempDir(), "diploma.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	e.documents.path = path
	rec = e.do(t, http.MethodGet, "/elnusa/users/1/download/diploma", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="Ijazah Budi.pdf"`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "%PDF-1.4\n", rec.Body.String())
}

func TestDeleteFileIsIdempotent(t *testing.T) {
	e := newEnv(t)
	for range 2 {
		rec := e.do(t, http.MethodDelete, "/elnusa/users/1/delete-file/cv", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBulkUpload(t *testing.T) {
	e := newEnv(t)
	e.importer.result = importer.Result{SuccessCount: 9, Total: 10, Errors: []importer.RowError{{Row: 6, Column: "name", Message: "is required"}}, DroppedColumns: []string{}}

	body, contentType := multipartBody(t, "file", "karyawan.csv", []byte("name\n"))
	rec := e.do(t, http.MethodPost, "/elnusa/upload-bulk?strict=true", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, e.importer.strict)
	require.Equal(t, "karyawan.csv", e.importer.name)
	out := decode(t, rec)
	require.JSONEq(t, `{"success":9,"total":10,"errors":[{"row":6,"column":"name","message":"is required"}],"droppedColumns":[]}`, string(out.Data))

	e.importer.err = &importer.RejectedError{Report: importer.Report{HeaderErrors: []importer.RowError{{Row: 1, Column: "name", Message: "missing required column"}}}}
	body, contentType = multipartBody(t, "file", "karyawan.csv", []byte("x\n"))
	rec = e.do(t, http.MethodPost, "/elnusa/upload-bulk", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "import_rejected", decode(t, rec).Error.Code)

	e.importer.err = errors.Wrap(importer.ErrInvalidFile, "unsupported file type")
	body, contentType = multipartBody(t, "file", "karyawan.pdf", []byte("x"))
	rec = e.do(t, http.MethodPost, "/elnusa/upload-bulk", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_file", decode(t, rec).Error.Code)

	rec = e.do(t, http.MethodPost, "/elnusa/upload-bulk?strict=maybe", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkUploadOutlivesClientDisconnect(t *testing.T) {
	e := newEnv(t)
	e.importer.result = importer.Result{SuccessCount: 1, Total: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body, contentType := multipartBody(t, "file", "karyawan.csv", []byte("name\n"))
	req := httptest.NewRequest(http.MethodPost, "/elnusa/upload-bulk", body).WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, e.importer.ctx)
	require.NoError(t, e.importer.ctx.Err())
}

func TestTemplates(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/elnusa/template/csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "name,contract_number,contract_start_date,contract_end_date,"))
	require.Len(t, strings.Split(strings.TrimSpace(rec.Body.String()), "\n"), 2)

	rec = e.do(t, http.MethodGet, "/elnusa/template/xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestCheckExpired(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/elnusa/check-expired", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Count   int `json:"count"`
		Records []struct {
			ID      int64  `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.Equal(t, 2, data.Count)
	require.Len(t, data.Records, 2)
}
