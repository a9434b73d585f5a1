package records

import (
	"slices"
	"testing"
)

func ts(t *testing.T, s string) Timestamp {
	t.Helper()
	v, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q) failed: %v", s, err)
	}
	return v
}

func TestExplodeGroups(t *testing.T) {
	in := []PersonRecord{
		{ID: "a", Group: "1, 3", Attributes: map[string]string{"school": "CC"}, Targets: []string{"b"}},
		{ID: "b", Group: "2"},
		{ID: "c"},
	}

	out := slices.Collect(ExplodeGroups(slices.Values(in)))
	if len(out) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(out))
	}

	var groups []string
	for _, r := range out {
		groups = append(groups, r.ID+":"+r.Group)
	}
	if !slices.Equal(groups, []string{"a:1", "a:3", "b:2", "c:"}) {
		t.Errorf("Expected [a:1 a:3 b:2 c:], got %v", groups)
	}

	out[0].Attributes["school"] = "SEAS"
	if out[1].Attributes["school"] != "CC" {
		t.Error("Expected exploded records not to share attribute maps")
	}
}

func TestSortByGroupAndTime(t *testing.T) {
	recs := []PersonRecord{
		{ID: "late10", Group: "10", Timestamp: ts(t, "2025/04/02 09:00:00 AM")},
		{ID: "late2", Group: "2", Timestamp: ts(t, "2025/04/02 09:00:00 AM")},
		{ID: "bad2", Group: "2", Timestamp: Timestamp{Raw: "garbage"}},
		{ID: "early2", Group: "2", Timestamp: ts(t, "2025/04/01 09:00:00 AM")},
		{ID: "named", Group: "pilot"},
	}

	SortByGroupAndTime(recs)

	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	want := []string{"early2", "late2", "bad2", "late10", "named"}
	if !slices.Equal(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
}

func TestCompareGroups(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"3", "3", 0},
		{"3", "pilot", -1},
		{"alpha", "beta", -1},
	}
	for _, tt := range tests {
		if got := CompareGroups(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareGroups(%q, %q): expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestParseTimestampFormats(t *testing.T) {
	for _, s := range []string{
		"2025/04/01 10:05:32 AM EDT",
		"2025/04/01 10:05:32 PM",
		"2025-04-01T10:05:32Z",
		"4/1/2025 10:05:32",
	} {
		v, err := ParseTimestamp(s)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", s, err)
			continue
		}
		if v.Time.Year() != 2025 || v.Time.Month() != 4 || v.Time.Day() != 1 {
			t.Errorf("ParseTimestamp(%q): expected 2025-04-01, got %v", s, v.Time)
		}
	}

	if _, err := ParseTimestamp(""); err == nil {
		t.Error("Expected error for empty timestamp")
	}
}
