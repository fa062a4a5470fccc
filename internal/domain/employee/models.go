package employee

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hrdash/internal/domain/contract"
	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/history"
)

type DocumentSlot struct {
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	MimeType string `json:"mimetype"`
	Size     int64  `json:"filesize"`
}

// Record is one employee-contract row. Status and DaysRemaining are derived
// by Evaluate and never stored.
type Record struct {
	ID                 int64
	Name               string
	ContractNumber     *string
	ContractStartDate  string
	ContractEndDate    string
	DeactivationReason *string
	Attributes         map[string]any
	Documents          map[DocumentKind]*DocumentSlot
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Status        contract.Status
	DaysRemaining int

	kinds []DocumentKind
}

func (r Record) EndDate() time.Time {
	end, _ := dates.Parse(r.ContractEndDate)
	return end
}

// Evaluate fills the derived status fields against today.
func (r *Record) Evaluate(today time.Time) {
	end := r.EndDate()
	r.Status = contract.Classify(r.DeactivationReason, end, today)
	if end.IsZero() {
		r.DaysRemaining = 0
		return
	}
	r.DaysRemaining = contract.DaysRemaining(end, today)
}

func (r Record) Contract() history.Snapshot {
	snap := history.Snapshot{StartDate: r.ContractStartDate, EndDate: r.ContractEndDate}
	if r.ContractNumber != nil {
		snap.ContractNumber = strings.TrimSpace(*r.ContractNumber)
	}
	return snap
}

func (r Record) Document(kind DocumentKind) (DocumentSlot, bool) {
	slot, ok := r.Documents[kind]
	if !ok || slot == nil || slot.Filepath == "" {
		return DocumentSlot{}, false
	}
	return *slot, true
}

// MarshalJSON renders the record as one flat object, the shape the dashboard
// tables consume: core columns, attributes, then four fields per slot.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 10+len(r.Attributes)+4*len(r.kinds))
	for key, value := range r.Attributes {
		out[key] = value
	}
	out[ColID] = r.ID
	out[ColName] = r.Name
	out[ColContractNumber] = r.ContractNumber
	out[ColContractStartDate] = r.ContractStartDate
	out[ColContractEndDate] = r.ContractEndDate
	out[ColDeactivationReason] = r.DeactivationReason
	out[ColCreatedAt] = r.CreatedAt
	out[ColUpdatedAt] = r.UpdatedAt
	out["status"] = r.Status
	out["days_remaining"] = r.DaysRemaining

	kinds := r.kinds
	if len(kinds) == 0 {
		for kind := range r.Documents {
			kinds = append(kinds, kind)
		}
	}
	for _, kind := range kinds {
		fn, fp, mt, fs := SlotColumns(kind)
		if slot, ok := r.Document(kind); ok {
			out[fn], out[fp], out[mt], out[fs] = slot.Filename, slot.Filepath, slot.MimeType, slot.Size
			continue
		}
		out[fn], out[fp], out[mt], out[fs] = nil, nil, nil, nil
	}
	return json.Marshal(out)
}

func newRecord(schema Schema) Record {
	return Record{
		Attributes: make(map[string]any, len(schema.Columns)),
		Documents:  make(map[DocumentKind]*DocumentSlot),
		kinds:      schema.DocumentKinds,
	}
}

// recordFromMap builds a Record from a row keyed by column name, as returned
// by pgx.RowToMap over the schema projection.
func recordFromMap(schema Schema, row map[string]any) Record {
	rec := newRecord(schema)
	for column, value := range row {
		rec.set(schema, column, value)
	}
	rec.compactSlots()
	return rec
}

// apply writes prepared column values onto a copy of r.
func (r Record) apply(schema Schema, values map[string]any) Record {
	out := newRecord(schema)
	out.ID, out.Name = r.ID, r.Name
	out.ContractNumber, out.DeactivationReason = r.ContractNumber, r.DeactivationReason
	out.ContractStartDate, out.ContractEndDate = r.ContractStartDate, r.ContractEndDate
	out.CreatedAt, out.UpdatedAt = r.CreatedAt, r.UpdatedAt
	for key, value := range r.Attributes {
		out.Attributes[key] = value
	}
	for kind, slot := range r.Documents {
		if slot != nil {
			copied := *slot
			out.Documents[kind] = &copied
		}
	}
	for column, value := range values {
		out.set(schema, column, value)
	}
	out.compactSlots()
	return out
}

func (r *Record) set(schema Schema, column string, value any) {
	switch column {
	case ColID:
		r.ID = toInt64(value)
	case ColName:
		r.Name = toString(value)
	case ColContractNumber:
		r.ContractNumber = toStringPtr(value)
	case ColContractStartDate:
		r.ContractStartDate = toString(value)
	case ColContractEndDate:
		r.ContractEndDate = toString(value)
	case ColDeactivationReason:
		r.DeactivationReason = toStringPtr(value)
	case ColCreatedAt:
		r.CreatedAt, _ = value.(time.Time)
	case ColUpdatedAt:
		r.UpdatedAt, _ = value.(time.Time)
	default:
		if kind, ok := schema.slotKindOf(column); ok {
			r.setSlotField(kind, column, value)
			return
		}
		col, ok := schema.Column(column)
		if !ok {
			return
		}
		r.Attributes[column] = attributeValue(col, value)
	}
}

func (r *Record) setSlotField(kind DocumentKind, column string, value any) {
	slot := r.Documents[kind]
	if slot == nil {
		slot = &DocumentSlot{}
		r.Documents[kind] = slot
	}
	fn, fp, mt, _ := SlotColumns(kind)
	switch column {
	case fn:
		slot.Filename = toString(value)
	case fp:
		slot.Filepath = toString(value)
	case mt:
		slot.MimeType = toString(value)
	default:
		slot.Size = toInt64(value)
	}
}

// compactSlots drops slots without a stored file so an empty slot is always
// represented as absent.
func (r *Record) compactSlots() {
	for kind, slot := range r.Documents {
		if slot == nil || slot.Filepath == "" {
			delete(r.Documents, kind)
		}
	}
}

func attributeValue(col Column, value any) any {
	if value == nil {
		return nil
	}
	switch col.Kind {
	case KindNumeric:
		s := toString(value)
		if s == "" {
			return nil
		}
		return json.Number(s)
	case KindInteger:
		return toInt64(value)
	default:
		return toString(value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case time.Time:
		return v.Format(dates.Layout)
	default:
		return fmt.Sprint(v)
	}
}

func toStringPtr(value any) *string {
	if value == nil {
		return nil
	}
	if p, ok := value.(*string); ok {
		return p
	}
	s := toString(value)
	return &s
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}
