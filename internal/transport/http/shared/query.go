package shared

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Pagination struct {
	Limit  int
	Offset int
}

// Page reads limit and offset from q. Malformed values are recorded as
// issues; a limit above maxLimit is clamped.
func (v *Validator) Page(q url.Values, defaultLimit, maxLimit int) Pagination {
	page := Pagination{Limit: defaultLimit}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = n
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or a positive integer")
		} else {
			page.Offset = n
		}
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

// Date parses an optional RFC3339 timestamp or YYYY-MM-DD date. An empty
// value is not an issue.
func (v *Validator) Date(field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, true
	}
	parsed, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		v.Add(field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return parsed, true
}
