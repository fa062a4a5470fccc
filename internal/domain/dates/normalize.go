// Package dates converts the date shapes found in payloads and spreadsheets
// to the canonical YYYY-MM-DD storage form.
package dates

import (
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const Layout = "2006-01-02"

var (
	isoPrefix      = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ]`)
	canonicalISO   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	canonicalLocal = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Accepted layouts in match order. Day-first forms come before year-first
// ones only where the shapes cannot collide.
var layouts = []string{
	"2006-1-2",
	"2/1/2006",
	"2-1-2006",
	"2006/1/2",
	"2.1.2006",
}

// Normalize returns the canonical form of value and false when the value is
// empty or cannot be read as a date. It never panics.
func Normalize(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		return v.Format(Layout), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return "", false
		}
		return v.Format(Layout), true
	case *string:
		if v == nil {
			return "", false
		}
		return NormalizeString(*v)
	case string:
		return NormalizeString(v)
	default:
		logrus.WithField("type", typeName(value)).Debug("dates: unsupported date value")
		return "", false
	}
}

// NormalizeString is Normalize for string input.
func NormalizeString(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	if m := isoPrefix.FindStringSubmatch(value); m != nil {
		value = m[1]
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if parsed.Year() < 1900 {
			break
		}
		return parsed.Format(Layout), true
	}
	logrus.WithField("value", raw).Debug("dates: unparseable date")
	return "", false
}

// Parse reads a canonical or accepted date into a UTC midnight time.
func Parse(raw string) (time.Time, bool) {
	normalized, ok := NormalizeString(raw)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := time.Parse(Layout, normalized)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// IsCanonicalInput reports whether raw uses one of the two formats bulk
// templates are allowed to carry: DD/MM/YYYY or YYYY-MM-DD.
func IsCanonicalInput(raw string) bool {
	value := strings.TrimSpace(raw)
	if !canonicalISO.MatchString(value) && !canonicalLocal.MatchString(value) {
		return false
	}
	_, ok := NormalizeString(value)
	return ok
}

// Today is the calendar date of now in loc, as UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func typeName(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "float"
	case bool:
		return "bool"
	default:
		return "other"
	}
}
