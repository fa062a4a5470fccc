package importer

import (
	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/employee"
)

// MaxReportedErrors caps the errors Validate collects.
const MaxReportedErrors = 10

type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

type Report struct {
	Valid bool `json:"valid"`
	// HeaderErrors are fatal to the whole file.
	HeaderErrors []RowError `json:"headerErrors,omitempty"`
	Errors       []RowError `json:"errors"`
	Truncated    bool       `json:"truncated,omitempty"`
}

// Validate checks the header and every row without stopping at the first
// failure. At most MaxReportedErrors row errors are kept.
func Validate(schema employee.Schema, sheet Sheet) Report {
	report := Report{Errors: []RowError{}}
	present := make(map[string]bool, len(sheet.Header))
	for _, name := range sheet.Header {
		present[name] = true
	}
	for _, field := range schema.RequiredFields {
		if !present[field] {
			report.HeaderErrors = append(report.HeaderErrors, RowError{Row: 1, Column: field, Message: "missing required column"})
		}
	}

	for _, row := range sheet.Rows {
		for _, rowErr := range validateRow(schema, row) {
			if len(report.Errors) == MaxReportedErrors {
				report.Truncated = true
				break
			}
			report.Errors = append(report.Errors, rowErr)
		}
	}
	report.Valid = len(report.HeaderErrors) == 0 && len(report.Errors) == 0 && !report.Truncated
	return report
}

// validateRow applies the template rules to one row: required fields are
// non-empty, dates use DD/MM/YYYY or YYYY-MM-DD, numeric columns parse.
func validateRow(schema employee.Schema, row Row) []RowError {
	var out []RowError
	for _, field := range schema.RequiredFields {
		if row.Values[field] == "" {
			out = append(out, RowError{Row: row.Number, Column: field, Message: "is required"})
		}
	}
	for _, column := range schema.DateColumns() {
		value := row.Values[column]
		if value != "" && !dates.IsCanonicalInput(value) {
			out = append(out, RowError{Row: row.Number, Column: column, Message: "must use DD/MM/YYYY or YYYY-MM-DD"})
		}
	}
	for _, column := range schema.NumericColumns() {
		value := row.Values[column]
		if value == "" {
			continue
		}
		if _, err := employee.ParseDecimal(value); err != nil {
			out = append(out, RowError{Row: row.Number, Column: column, Message: "must be a number"})
		}
	}
	return out
}
