package employee

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"hrdash/internal/domain/dates"
)

// coerce converts one payload value to the form stored in col. Empty strings
// become nil for every kind.
func coerce(col Column, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch col.Kind {
	case KindNumeric:
		d, err := ParseDecimal(value)
		if err != nil {
			return nil, invalid(col.Name, "must be a number")
		}
		return d.String(), nil
	case KindInteger:
		d, err := ParseDecimal(value)
		if err != nil || !d.IsInteger() {
			return nil, invalid(col.Name, "must be a whole number")
		}
		return d.IntPart(), nil
	case KindDate:
		normalized, ok := dates.Normalize(value)
		if !ok {
			return nil, invalid(col.Name, "must be a valid date (DD/MM/YYYY or YYYY-MM-DD)")
		}
		return normalized, nil
	default:
		return textValue(value), nil
	}
}

// ParseDecimal accepts JSON numbers and locale-formatted strings. When both
// separators appear, the last one is the decimal separator; a lone comma is
// always decimal and a repeated separator is always grouping.
func ParseDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(normalizeDecimalString(v))
	default:
		return decimal.Decimal{}, strconv.ErrSyntax
	}
}

func normalizeDecimalString(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

func textValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(toString(v))
	}
}
