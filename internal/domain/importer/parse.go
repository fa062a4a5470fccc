// Package importer turns CSV and Excel workbooks into employee records with
// per-row validation and partial-success reporting.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"hrdash/internal/domain/dates"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type; upload a .csv or .xlsx file")
	ErrEmptyFile         = errors.New("file has no header row")
	ErrNoRows            = errors.New("file has no data rows")
)

// FormatFromFilename picks the parser from the file extension.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Row is one data row keyed by normalized header. Number is the row's
// position in the file with the header as row 1.
type Row struct {
	Number int
	Values map[string]string
}

type Sheet struct {
	Header []string
	Rows   []Row
}

// Parse reads the whole file. Blank rows are skipped and missing trailing
// cells default to "". In workbooks, numeric cells under dateColumns are read
// as Excel date serials.
func Parse(r io.Reader, format Format, dateColumns []string) (Sheet, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return Sheet{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Sheet{}, err
	}
	if len(records) == 0 {
		return Sheet{}, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = NormalizeHeader(name)
	}
	isDate := make(map[string]bool, len(dateColumns))
	for _, col := range dateColumns {
		isDate[col] = true
	}

	sheet := Sheet{Header: header}
	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		values := make(map[string]string, len(header))
		for col, name := range header {
			if name == "" {
				continue
			}
			cell := ""
			if col < len(record) {
				cell = strings.TrimSpace(record[col])
			}
			if format == FormatXLSX && isDate[name] {
				cell = fromSerial(cell)
			}
			values[name] = cell
		}
		sheet.Rows = append(sheet.Rows, Row{Number: i + 2, Values: values})
	}
	if len(sheet.Rows) == 0 {
		return Sheet{}, ErrNoRows
	}
	return sheet, nil
}

// NormalizeHeader maps "Contract End Date" and "contract-end-date" to
// contract_end_date.
func NormalizeHeader(raw string) string {
	name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

func readCSV(r io.Reader) ([][]string, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.Comma = sniffDelimiter(br)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return records, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// sniffDelimiter switches to ';' when the header line uses it and has no
// commas, the shape spreadsheet apps export under comma-decimal locales.
func sniffDelimiter(r *bufio.Reader) rune {
	peek, _ := r.Peek(4096)
	line := peek
	if idx := bytes.IndexByte(peek, '\n'); idx >= 0 {
		line = peek[:idx]
	}
	if bytes.Count(line, []byte(";")) > 0 && bytes.Count(line, []byte(",")) == 0 {
		return ';'
	}
	return ','
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrap(err, "read worksheet")
	}
	return rows, nil
}

// fromSerial converts an Excel date serial to YYYY-MM-DD and leaves any other
// text untouched.
func fromSerial(cell string) string {
	serial, err := strconv.ParseFloat(cell, 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return cell
	}
	return t.Format(dates.Layout)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
