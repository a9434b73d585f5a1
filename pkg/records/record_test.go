package records

import (
	"slices"
	"strings"
	"testing"
)

func collect(t *testing.T, csvText string) []PersonRecord {
	t.Helper()
	var rows []Row
	for row, err := range ReadCSV(strings.NewReader(csvText)) {
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		rows = append(rows, row)
	}
	return slices.Collect(Normalize(slices.Values(rows), DefaultFields()))
}

func TestNormalizeTrimsAndRenames(t *testing.T) {
	recs := collect(t, " UNI ,Group,Timestamp,School,Major,Next Person(s) UNI\n"+
		"  ab1234 , 1 ,2025/04/01 10:05:32 AM EDT, SEAS ,\"Computer Science, Psychology\",\"cd5678, ef9012\"\n")

	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	r := recs[0]

	if r.ID != "ab1234" {
		t.Errorf("Expected ID ab1234, got %q", r.ID)
	}
	if r.Group != "1" {
		t.Errorf("Expected group 1, got %q", r.Group)
	}
	if !r.Timestamp.Valid {
		t.Errorf("Expected timestamp to parse, got raw %q", r.Timestamp.Raw)
	}
	if r.Attributes["school"] != "SEAS" {
		t.Errorf("Expected school SEAS, got %q", r.Attributes["school"])
	}
	if !slices.Equal(r.Lists["major"], []string{"Computer Science", "Psychology"}) {
		t.Errorf("Expected majors [Computer Science Psychology], got %v", r.Lists["major"])
	}
	if !slices.Equal(r.Targets, []string{"cd5678", "ef9012"}) {
		t.Errorf("Expected targets [cd5678 ef9012], got %v", r.Targets)
	}
	if r.Row != 1 {
		t.Errorf("Expected row 1, got %d", r.Row)
	}
}

func TestNormalizeAbsentValues(t *testing.T) {
	recs := collect(t, "UNI,Group,School,nextUNI\nab1234,1,N/A,N/A\n")

	r := recs[0]
	if _, ok := r.Attributes["school"]; ok {
		t.Errorf("Expected absent school to be omitted, got %q", r.Attributes["school"])
	}
	if len(r.Targets) != 0 {
		t.Errorf("Expected no targets, got %v", r.Targets)
	}
}

func TestNormalizeEnumeratedTargets(t *testing.T) {
	recs := collect(t, "UNI,Group,nextUNI10,nextUNI2,nextUNI1\nab1234,1,zz0010,yy0002,xx0001\n")

	want := []string{"xx0001", "yy0002", "zz0010"}
	if !slices.Equal(recs[0].Targets, want) {
		t.Errorf("Expected targets %v, got %v", want, recs[0].Targets)
	}
}

func TestNormalizeDeduplicatesTargets(t *testing.T) {
	recs := collect(t, "UNI,Group,nextUNIs,nextUNI1\nab1234,1,\"cd5678, cd5678\",cd5678\n")

	if !slices.Equal(recs[0].Targets, []string{"cd5678"}) {
		t.Errorf("Expected one target, got %v", recs[0].Targets)
	}
}

func TestNormalizeMalformedTimestamp(t *testing.T) {
	var issues []Issue
	n := &Normalizer{
		Fields:  DefaultFields(),
		OnIssue: func(i Issue) { issues = append(issues, i) },
	}
	rows := []Row{{"UNI": "ab1234", "Group": "1", "Timestamp": "yesterday-ish"}}

	recs := slices.Collect(n.Records(slices.Values(rows)))
	if len(recs) != 1 {
		t.Fatalf("Expected record to be kept, got %d records", len(recs))
	}
	if recs[0].Timestamp.Valid {
		t.Error("Expected timestamp to be invalid")
	}
	if recs[0].Timestamp.Raw != "yesterday-ish" {
		t.Errorf("Expected raw timestamp kept, got %q", recs[0].Timestamp.Raw)
	}
	if len(issues) != 1 || issues[0].Row != 1 || issues[0].Field != "Timestamp" {
		t.Errorf("Expected one timestamp issue on row 1, got %+v", issues)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	recs := slices.Collect(Normalize(slices.Values([]Row(nil)), DefaultFields()))
	if len(recs) != 0 {
		t.Errorf("Expected no records, got %d", len(recs))
	}
}

func TestReadCSVSkipsBlankAndPadsShortRows(t *testing.T) {
	var rows []Row
	for row, err := range ReadCSV(strings.NewReader("\ufeffUNI,Group,School\nab1234,1\n,,\ncd5678,2,CC\n")) {
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		rows = append(rows, row)
	}

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if _, ok := rows[0]["UNI"]; !ok {
		t.Error("Expected byte order mark to be stripped from header")
	}
	if v, ok := rows[0]["School"]; !ok || v != "" {
		t.Errorf("Expected short row padded with empty School, got %q (present %v)", v, ok)
	}
}

func TestSplitItems(t *testing.T) {
	got := SplitItems(" French , N/A,, Spanish ")
	if !slices.Equal(got, []string{"French", "Spanish"}) {
		t.Errorf("Expected [French Spanish], got %v", got)
	}
}
