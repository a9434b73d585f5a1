package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Timestamp is a response time. Values that could not be parsed keep their
// raw text and sort after every parsed value.
type Timestamp struct {
	Time  time.Time
	Raw   string
	Valid bool
}

// surveyLayouts are the forms the survey export writes, e.g.
// "2025/04/01 10:05:32 AM EDT".
var surveyLayouts = []string{
	"2006/01/02 3:04:05 PM MST",
	"2006/01/02 3:04:05 PM",
	"2006/01/02 15:04:05",
}

// ParseTimestamp parses s. On failure the returned Timestamp still carries the
// raw value so the row can be kept with a neutral sort key.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	ts := Timestamp{Raw: s}
	if s == "" {
		return ts, fmt.Errorf("empty timestamp")
	}

	for _, layout := range surveyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time, ts.Valid = t, true
			return ts, nil
		}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return ts, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	ts.Time, ts.Valid = t, true
	return ts, nil
}

// Compare orders parsed timestamps chronologically before unparsed ones;
// unparsed timestamps compare by raw text.
func (t Timestamp) Compare(u Timestamp) int {
	switch {
	case t.Valid && u.Valid:
		return t.Time.Compare(u.Time)
	case t.Valid:
		return -1
	case u.Valid:
		return 1
	default:
		return strings.Compare(t.Raw, u.Raw)
	}
}

func (t Timestamp) String() string {
	if t.Valid {
		return t.Time.Format(time.RFC3339)
	}
	return t.Raw
}
