package normalize

import (
	"strings"
	"time"
)

// CanonicalDateFormat is the output representation for all date fields.
const CanonicalDateFormat = "02-01-2006"

// Layouts tried on the first, day-first parsing attempt. Year-first
// representations are unambiguous and belong here.
var dayFirstLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2006-01-02",
	"2006/01/02",
	"2 January 2006",
	"2 Jan 2006",
	"02-01-2006 15:04:05",
	"2006-01-02 15:04:05",
}

// Layouts tried only after every day-first layout has failed.
var monthFirstLayouts = []string{
	"01-02-2006",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses a raw date cell under the dual-attempt policy: day-first
// layouts are tried first, and month-first layouts only if all of those fail.
func ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	for _, layout := range monthFirstLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CanonicalDate normalizes a raw date cell to DD-MM-YYYY. Values that fail
// both parsing attempts normalize to the empty sentinel, never left raw.
func CanonicalDate(raw string) string {
	t, ok := ParseDate(raw)
	if !ok {
		return ""
	}
	return t.Format(CanonicalDateFormat)
}
