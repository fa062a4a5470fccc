package employee

import (
	"sort"
	"time"

	"hrdash/internal/domain/contract"
	"hrdash/internal/domain/dates"
)

// Changes is a validated write: column values ready for the store.
type Changes struct {
	Values map[string]any
	// Cleared lists document slots explicitly set to null.
	Cleared []DocumentKind
	Dropped []string
}

// PrepareCreate validates a new record payload. Unknown keys are dropped,
// document slot fields are ignored, and a contract that has already lapsed
// without a reason gets the EOC reason.
func (s Schema) PrepareCreate(data map[string]any, today time.Time) (Changes, error) {
	kept, dropped := s.Filter(data)
	values := make(map[string]any, len(kept))

	for _, name := range sortedKeys(kept) {
		if _, isSlot := s.slotKindOf(name); isSlot {
			continue
		}
		col, _ := s.Column(name)
		value, err := coerce(col, kept[name])
		if err != nil {
			return Changes{}, err
		}
		values[name] = value
	}

	for _, field := range s.RequiredFields {
		if values[field] == nil {
			return Changes{}, invalid(field, "is required")
		}
	}

	if err := checkContractOrder(values[ColContractStartDate], values[ColContractEndDate]); err != nil {
		return Changes{}, err
	}
	applyEndOfContract(values, nil, asString(values[ColContractEndDate]), today)
	return Changes{Values: values, Dropped: dropped}, nil
}

// PrepareUpdate validates a partial update against current. A slot field
// set to null clears the whole slot; non-null slot values are ignored since
// slot metadata only changes through uploads.
func (s Schema) PrepareUpdate(current Record, data map[string]any, today time.Time) (Changes, error) {
	kept, dropped := s.Filter(data)
	values := make(map[string]any, len(kept))
	var cleared []DocumentKind

	for _, name := range sortedKeys(kept) {
		raw := kept[name]
		if kind, isSlot := s.slotKindOf(name); isSlot {
			if raw == nil && !containsKind(cleared, kind) {
				cleared = append(cleared, kind)
			}
			continue
		}
		col, _ := s.Column(name)
		value, err := coerce(col, raw)
		if err != nil {
			return Changes{}, err
		}
		if value == nil && s.IsRequired(name) {
			return Changes{}, invalid(name, "cannot be empty")
		}
		values[name] = value
	}

	for _, kind := range cleared {
		fn, fp, mt, fs := SlotColumns(kind)
		values[fn], values[fp], values[mt], values[fs] = nil, nil, nil, nil
	}

	start := current.ContractStartDate
	if v, ok := values[ColContractStartDate]; ok {
		start = asString(v)
	}
	end := current.ContractEndDate
	if v, ok := values[ColContractEndDate]; ok {
		end = asString(v)
	}
	if err := checkContractOrder(start, end); err != nil {
		return Changes{}, err
	}

	reason := current.DeactivationReason
	if v, ok := values[ColDeactivationReason]; ok {
		reason = nil
		if v != nil {
			r := asString(v)
			reason = &r
		}
	}
	applyEndOfContract(values, reason, end, today)
	return Changes{Values: values, Cleared: cleared, Dropped: dropped}, nil
}

// applyEndOfContract sets the EOC reason when the resulting contract has
// lapsed and no reason is in effect.
func applyEndOfContract(values map[string]any, reason *string, endDate string, today time.Time) {
	if v, ok := values[ColDeactivationReason]; ok && v != nil {
		r := asString(v)
		reason = &r
	}
	if contract.HasReason(reason) {
		return
	}
	end, ok := dates.Parse(endDate)
	if ok && contract.Lapsed(end, today) {
		values[ColDeactivationReason] = contract.ReasonEndOfContract
	}
}

func checkContractOrder(start, end any) error {
	s, okStart := dates.Parse(asString(start))
	e, okEnd := dates.Parse(asString(end))
	if okStart && okEnd && e.Before(s) {
		return invalid(ColContractEndDate, "must be on or after contract_start_date")
	}
	return nil
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	return toString(value)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func containsKind(kinds []DocumentKind, kind DocumentKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
