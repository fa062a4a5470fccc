// Package reports renders contract summaries and the printable list of
// contracts about to expire.
package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/jung-kurt/gofpdf"

	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/employee"
)

const DefaultExpiringDays = 30

type Counter interface {
	Summary(ctx context.Context, today, until time.Time) (Summary, error)
}

type ExpiringLister interface {
	Today() time.Time
	ListExpiring(ctx context.Context, days int) ([]employee.Record, error)
}

type Service struct {
	Schema   employee.Schema
	Counter  Counter
	Contract ExpiringLister
}

func NewService(schema employee.Schema, counter Counter, contracts ExpiringLister) *Service {
	return &Service{Schema: schema, Counter: counter, Contract: contracts}
}

func (s *Service) Summary(ctx context.Context, days int) (Summary, error) {
	days = clampDays(days)
	today := s.Contract.Today()
	out, err := s.Counter.Summary(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return Summary{}, err
	}
	out.Project = s.Schema.Project
	out.Days = days
	return out, nil
}

// ExpiringPDF writes an A4 landscape table of active contracts ending within
// days, soonest first.
func (s *Service) ExpiringPDF(ctx context.Context, w io.Writer, days int) (int, error) {
	days = clampDays(days)
	records, err := s.Contract.ListExpiring(ctx, days)
	if err != nil {
		return 0, err
	}
	doc := ExpiringReport{
		Title:   s.Schema.DisplayName,
		Today:   s.Contract.Today(),
		Days:    days,
		Records: records,
	}
	if err := doc.Render(w); err != nil {
		return 0, err
	}
	return len(records), nil
}

type ExpiringReport struct {
	Title   string
	Today   time.Time
	Days    int
	Records []employee.Record
}

var expiringColumns = []struct {
	title string
	width float64
}{
	{"No", 12},
	{"Name", 70},
	{"Contract Number", 55},
	{"Start", 30},
	{"End", 30},
	{"Days Left", 25},
	{"Position", 55},
}

func (r ExpiringReport) Render(w io.Writer) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Expiring contracts", true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Expiring Contracts - %s", r.Title))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("As of %s, ending within %d days: %d record(s)", r.Today.Format(dates.Layout), r.Days, len(r.Records)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range expiringColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i, rec := range r.Records {
		cells := []string{
			fmt.Sprintf("%d", i+1),
			rec.Name,
			deref(rec.ContractNumber),
			rec.ContractStartDate,
			rec.ContractEndDate,
			fmt.Sprintf("%d", rec.DaysRemaining),
			attribute(rec, "position"),
		}
		for j, col := range expiringColumns {
			align := "L"
			if j == 0 || j == 5 {
				align = "C"
			}
			pdf.CellFormat(col.width, 7, truncate(pdf, tr(cells[j]), col.width-2), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(r.Records) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Cell(0, 8, "No contracts expire in this window.")
	}

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "render expiring report")
	}
	return nil
}

func clampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultExpiringDays
	case days > 366:
		return 366
	}
	return days
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func attribute(rec employee.Record, name string) string {
	v, ok := rec.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// truncate shortens text to fit width using the current font.
func truncate(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
