package shared

import (
	"net/url"
	"strconv"
	"strings"
)

type Pagination struct {
	Limit  int
	Offset int
}

// Pagination reads limit and offset from the query. Limits above maxLimit are
// clamped; malformed values are reported as issues.
func (v *Validator) Pagination(query url.Values, defaultLimit, maxLimit int) Pagination {
	page := Pagination{Limit: v.PositiveInt("limit", query.Get("limit"), defaultLimit)}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or a positive integer")
		} else {
			page.Offset = n
		}
	}
	return page
}
