package employee

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

type ColumnKind string

const (
	KindText    ColumnKind = "text"
	KindNumeric ColumnKind = "numeric"
	KindInteger ColumnKind = "integer"
	KindDate    ColumnKind = "date"
)

type Column struct {
	Name string
	Kind ColumnKind
}

type DocumentKind string

// DefaultDocumentKinds is the slot set every built-in project carries.
var DefaultDocumentKinds = []DocumentKind{
	"cv",
	"diploma",
	"certificate",
	"employment_contract_doc",
	"id_card",
	"family_card",
	"tax_id",
	"health_insurance",
	"social_insurance",
	"bank_account",
}

const (
	ColID                 = "id"
	ColName               = "name"
	ColContractNumber     = "contract_number"
	ColContractStartDate  = "contract_start_date"
	ColContractEndDate    = "contract_end_date"
	ColDeactivationReason = "deactivation_reason"
	ColCreatedAt          = "created_at"
	ColUpdatedAt          = "updated_at"
)

var coreColumns = []Column{
	{Name: ColName, Kind: KindText},
	{Name: ColContractNumber, Kind: KindText},
	{Name: ColContractStartDate, Kind: KindDate},
	{Name: ColContractEndDate, Kind: KindDate},
	{Name: ColDeactivationReason, Kind: KindText},
}

// DefaultRequiredFields must be present and non-empty on create.
var DefaultRequiredFields = []string{ColName, ColContractStartDate, ColContractEndDate}

// Schema describes one project's employee table. It replaces runtime
// information_schema lookups: only columns named here are ever written.
type Schema struct {
	Project        string
	DisplayName    string
	Table          string
	DocumentKinds  []DocumentKind
	RequiredFields []string
	Columns        []Column
}

func (s Schema) HistoryTable() string     { return s.Table + "_contract_history" }
func (s Schema) CertificateTable() string { return s.Table + "_certificates" }

// DocumentKind validates raw against the project's allow-list.
func (s Schema) DocumentKind(raw string) (DocumentKind, error) {
	candidate := DocumentKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, kind := range s.DocumentKinds {
		if kind == candidate {
			return kind, nil
		}
	}
	return "", errors.Errorf("document kind %q: %w", raw, ErrInvalidDocumentKind)
}

// SlotColumns returns the four column names of a document slot.
func SlotColumns(kind DocumentKind) (filename, filepath, mimetype, filesize string) {
	k := string(kind)
	return k + "_filename", k + "_filepath", k + "_mimetype", k + "_filesize"
}

// Column looks up any writable column: core, attribute or document slot.
func (s Schema) Column(name string) (Column, bool) {
	for _, col := range coreColumns {
		if col.Name == name {
			return col, true
		}
	}
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	if _, ok := s.slotKindOf(name); ok {
		kind := KindText
		if strings.HasSuffix(name, "_filesize") {
			kind = KindInteger
		}
		return Column{Name: name, Kind: kind}, true
	}
	return Column{}, false
}

// slotKindOf maps a slot column name back to its document kind.
func (s Schema) slotKindOf(name string) (DocumentKind, bool) {
	for _, kind := range s.DocumentKinds {
		fn, fp, mt, fs := SlotColumns(kind)
		switch name {
		case fn, fp, mt, fs:
			return kind, true
		}
	}
	return "", false
}

// Filter keeps the keys that name a writable column and returns the rest,
// sorted, as dropped.
func (s Schema) Filter(data map[string]any) (map[string]any, []string) {
	kept := make(map[string]any, len(data))
	var dropped []string
	for key, value := range data {
		name := strings.TrimSpace(key)
		if _, ok := s.Column(name); ok {
			kept[name] = value
			continue
		}
		dropped = append(dropped, key)
	}
	sort.Strings(dropped)
	return kept, dropped
}

// IsRequired reports whether name is one of the create-time required fields.
func (s Schema) IsRequired(name string) bool {
	for _, field := range s.RequiredFields {
		if field == name {
			return true
		}
	}
	return false
}

// NumericColumns lists the attribute columns that must parse as numbers.
func (s Schema) NumericColumns() []string {
	var out []string
	for _, col := range s.Columns {
		if col.Kind == KindNumeric || col.Kind == KindInteger {
			out = append(out, col.Name)
		}
	}
	return out
}

// DateColumns lists every date column, contract dates first.
func (s Schema) DateColumns() []string {
	out := []string{ColContractStartDate, ColContractEndDate}
	for _, col := range s.Columns {
		if col.Kind == KindDate {
			out = append(out, col.Name)
		}
	}
	return out
}

// TemplateColumns is the header row of the bulk import template.
func (s Schema) TemplateColumns() []string {
	out := []string{ColName, ColContractNumber, ColContractStartDate, ColContractEndDate}
	for _, col := range s.Columns {
		out = append(out, col.Name)
	}
	return out
}

// selectList renders the projection used by every read and RETURNING clause.
// Dates come back as YYYY-MM-DD text and numerics as text.
func (s Schema) selectList() string {
	parts := []string{
		ColID,
		ColName,
		ColContractNumber,
		dateExpr(ColContractStartDate),
		dateExpr(ColContractEndDate),
		ColDeactivationReason,
		ColCreatedAt,
		ColUpdatedAt,
	}
	for _, col := range s.Columns {
		parts = append(parts, readExpr(col))
	}
	for _, kind := range s.DocumentKinds {
		fn, fp, mt, fs := SlotColumns(kind)
		parts = append(parts, ident(fn), ident(fp), ident(mt), ident(fs))
	}
	return strings.Join(parts, ", ")
}

func readExpr(col Column) string {
	switch col.Kind {
	case KindDate:
		return dateExpr(col.Name)
	case KindNumeric:
		return fmt.Sprintf("%s::text AS %s", ident(col.Name), ident(col.Name))
	default:
		return ident(col.Name)
	}
}

func dateExpr(name string) string {
	return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD') AS %s", ident(name), ident(name))
}

func sqlType(kind ColumnKind) string {
	switch kind {
	case KindNumeric:
		return "NUMERIC(18,2)"
	case KindInteger:
		return "BIGINT"
	case KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
