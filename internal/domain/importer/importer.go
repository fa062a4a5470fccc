package importer

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/employee"
)

// ErrInvalidFile wraps failures that reject the whole upload.
var ErrInvalidFile = errors.New("invalid import file")

// RejectedError is returned when the file cannot be imported at all: a
// missing required column, or any row error in strict mode.
type RejectedError struct {
	Report Report
}

func (e *RejectedError) Error() string {
	if len(e.Report.HeaderErrors) > 0 {
		return "import file is missing required columns"
	}
	return "import file failed validation"
}

type Options struct {
	// Strict rejects the file when any row fails validation.
	Strict bool
}

type Result struct {
	SuccessCount   int               `json:"success"`
	Total          int               `json:"total"`
	Errors         []RowError        `json:"errors"`
	DroppedColumns []string          `json:"droppedColumns"`
	Inserted       []employee.Record `json:"-"`
}

type Importer struct {
	Schema employee.Schema
	Store  employee.Repository
	Now    func() time.Time
	Loc    *time.Location
	// Timeout bounds the import transaction for a given row count.
	Timeout func(rows int) time.Duration
	Log     *logrus.Entry
}

func New(schema employee.Schema, store employee.Repository, loc *time.Location, timeout func(int) time.Duration, log *logrus.Entry) *Importer {
	return &Importer{
		Schema:  schema,
		Store:   store,
		Now:     time.Now,
		Loc:     loc,
		Timeout: timeout,
		Log:     log.WithField("project", schema.Project),
	}
}

// Import parses, validates and inserts one uploaded file.
func (im *Importer) Import(ctx context.Context, filename string, r io.Reader, opts Options) (Result, error) {
	format, err := FormatFromFilename(filename)
	if err != nil {
		return Result{}, errors.Wrap(ErrInvalidFile, err.Error())
	}
	sheet, err := Parse(r, format, im.Schema.DateColumns())
	if err != nil {
		return Result{}, errors.Wrap(ErrInvalidFile, err.Error())
	}

	report := Validate(im.Schema, sheet)
	if len(report.HeaderErrors) > 0 || (opts.Strict && !report.Valid) {
		return Result{}, &RejectedError{Report: report}
	}
	return im.ImportAll(ctx, sheet)
}

// ImportAll inserts every row in one transaction. A row that fails
// validation or is refused by the database is reported and skipped; any
// other error rolls the whole batch back.
func (im *Importer) ImportAll(ctx context.Context, sheet Sheet) (Result, error) {
	if im.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.Timeout(len(sheet.Rows)))
		defer cancel()
	}
	today := dates.Today(im.now(), im.Loc)

	result := Result{
		Total:          len(sheet.Rows),
		Errors:         []RowError{},
		DroppedColumns: im.droppedColumns(sheet.Header),
	}
	err := im.Store.ImportBatch(ctx, func(ctx context.Context, ins employee.BatchInserter) error {
		for _, row := range sheet.Rows {
			if rowErrs := validateRow(im.Schema, row); len(rowErrs) > 0 {
				result.Errors = append(result.Errors, rowErrs[0])
				continue
			}
			data := make(map[string]any, len(row.Values))
			for key, value := range row.Values {
				data[key] = value
			}
			changes, err := im.Schema.PrepareCreate(data, today)
			if err != nil {
				result.Errors = append(result.Errors, rowError(row.Number, err))
				continue
			}
			rec, err := ins.Insert(ctx, changes.Values)
			if errors.Is(err, employee.ErrRowRejected) {
				result.Errors = append(result.Errors, RowError{Row: row.Number, Message: err.Error()})
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "row %d", row.Number)
			}
			result.Inserted = append(result.Inserted, rec)
		}
		return nil
	})
	if err != nil {
		im.Log.WithError(err).WithField("rows", len(sheet.Rows)).Error("bulk import rolled back")
		return Result{}, err
	}
	result.SuccessCount = len(result.Inserted)
	im.Log.WithFields(logrus.Fields{
		"total":    result.Total,
		"imported": result.SuccessCount,
		"failed":   len(result.Errors),
	}).Info("bulk import committed")
	return result, nil
}

func (im *Importer) droppedColumns(header []string) []string {
	probe := make(map[string]any, len(header))
	for _, name := range header {
		if name != "" {
			probe[name] = nil
		}
	}
	_, dropped := im.Schema.Filter(probe)
	if dropped == nil {
		return []string{}
	}
	return dropped
}

func (im *Importer) now() time.Time {
	if im.Now != nil {
		return im.Now()
	}
	return time.Now()
}

func rowError(row int, err error) RowError {
	if verr, ok := employee.AsValidation(err); ok {
		return RowError{Row: row, Column: verr.Field, Message: verr.Message}
	}
	return RowError{Row: row, Message: err.Error()}
}
