package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"hrdash/internal/domain/employee"
)

const templateSheet = "Karyawan"

var exampleValues = map[string]string{
	employee.ColName: "Budi Santoso",
	"nik":            "3171010101900001",
	"position":       "Operator",
	"department":     "Operation",
	"work_location":  "Jakarta",
	"phone":          "081234567890",
	"email":          "budi.santoso@example.com",
	"gender":         "L",
	"birth_place":    "Bandung",
	"bank_name":      "BRI",
}

// TemplateRows returns the header and one example row for schema. The
// example contract runs from the start of today's year to the end of the
// next one, so importing it unchanged yields an active record.
func TemplateRows(schema employee.Schema, today time.Time) ([]string, []string) {
	year := today.Year()
	values := map[string]string{
		employee.ColContractNumber:    fmt.Sprintf("PKWT/001/%d", year),
		employee.ColContractStartDate: fmt.Sprintf("01/01/%d", year),
		employee.ColContractEndDate:   fmt.Sprintf("31/12/%d", year+1),
	}
	for k, v := range exampleValues {
		values[k] = v
	}

	header := schema.TemplateColumns()
	example := make([]string, len(header))
	for i, name := range header {
		if v, ok := values[name]; ok {
			example[i] = v
			continue
		}
		col, _ := schema.Column(name)
		switch col.Kind {
		case employee.KindNumeric, employee.KindInteger:
			example[i] = "0"
		case employee.KindDate:
			example[i] = "01/01/1990"
		}
	}
	return header, example
}

func WriteCSVTemplate(w io.Writer, schema employee.Schema, today time.Time) error {
	header, example := TemplateRows(schema, today)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(example); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSXTemplate writes the template as a single-sheet workbook with the
// header row in bold and every cell stored as text.
func WriteXLSXTemplate(w io.Writer, schema employee.Schema, today time.Time) error {
	header, example := TemplateRows(schema, today)
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), templateSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i := range header {
		headCell, _ := excelize.CoordinatesToCellName(i+1, 1)
		exampleCell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellStr(templateSheet, headCell, header[i]); err != nil {
			return err
		}
		if err := f.SetCellStr(templateSheet, exampleCell, example[i]); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(templateSheet, "A1", last, bold); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}
