package records

import (
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ritzau/forward-chain/pkg/model"
)

// Absent is the literal token survey exports use for "no value".
const Absent = "N/A"

// Row is one raw tabular row keyed by column header.
type Row map[string]string

// PersonRecord is one normalized survey response.
type PersonRecord struct {
	ID         string
	Timestamp  Timestamp
	Group      string
	Attributes map[string]string   // singular fields; absent values are omitted
	Lists      map[string][]string // list-valued fields, items in input order
	Targets    []string            // forward targets, deduplicated in input order
	Row        int                 // 1-based position in the input sequence
}

// Fields names the semantic columns of the export. Every other column is
// passed through as an opaque attribute.
type Fields struct {
	ID        string
	Group     string
	Timestamp string

	// Next lists columns holding a comma-separated list of forward targets.
	Next []string
	// NextPrefix is the prefix of numbered target columns (nextUNI1..nextUNIk).
	NextPrefix string

	// Lists are columns whose values are comma-separated lists.
	Lists []string
	// Rename maps a column header to the attribute name used on nodes.
	Rename map[string]string
}

// DefaultFields matches the survey export the tool was written for.
func DefaultFields() Fields {
	return Fields{
		ID:         "UNI",
		Group:      "Group",
		Timestamp:  "Timestamp",
		Next:       []string{"Next Person(s) UNI", "nextUNIs", "nextUNI"},
		NextPrefix: "nextUNI",
		Lists:      []string{"Languages You Speak (Rank by Frequency)", "Major", "languages"},
		Rename: map[string]string{
			"Languages You Speak (Rank by Frequency)": "language",
			"languages":        "language",
			"Major":            "major",
			"School":           "school",
			"Year (Class of )": "year",
			"Year":             "year",
			"Class of":         "year",
		},
	}
}

// Issue describes a recoverable problem found in one row.
type Issue struct {
	Row     int
	Field   string
	Value   string
	Message string
}

// Normalizer turns raw rows into person records.
type Normalizer struct {
	Fields Fields
	// OnIssue, when set, receives every soft failure (e.g. a malformed timestamp).
	OnIssue func(Issue)
}

// Normalize is shorthand for a Normalizer without diagnostics.
func Normalize(rows iter.Seq[Row], f Fields) iter.Seq[PersonRecord] {
	n := &Normalizer{Fields: f}
	return n.Records(rows)
}

// Records lazily normalizes rows, one record per row, in input order.
func (n *Normalizer) Records(rows iter.Seq[Row]) iter.Seq[PersonRecord] {
	return func(yield func(PersonRecord) bool) {
		i := 0
		for row := range rows {
			i++
			if !yield(n.normalize(row, i)) {
				return
			}
		}
	}
}

func (n *Normalizer) normalize(raw Row, index int) PersonRecord {
	row := make(map[string]string, len(raw))
	for k, v := range raw {
		row[strings.TrimSpace(k)] = v
	}

	f := n.Fields
	rec := PersonRecord{
		ID:         clean(row[f.ID]),
		Group:      clean(row[f.Group]),
		Attributes: make(map[string]string),
		Lists:      make(map[string][]string),
		Row:        index,
	}

	if rawTS := clean(row[f.Timestamp]); rawTS != "" {
		ts, err := ParseTimestamp(rawTS)
		if err != nil && n.OnIssue != nil {
			n.OnIssue(Issue{Row: index, Field: f.Timestamp, Value: rawTS, Message: err.Error()})
		}
		rec.Timestamp = ts
	}

	semantic := map[string]bool{f.ID: true, f.Group: true, f.Timestamp: true}
	for _, col := range f.Next {
		semantic[col] = true
	}
	enumerated := enumeratedColumns(row, f.NextPrefix)
	for _, col := range enumerated {
		semantic[col] = true
	}

	rec.Targets = collectTargets(row, f.Next, enumerated)

	isList := make(map[string]bool, len(f.Lists))
	for _, col := range f.Lists {
		isList[col] = true
	}

	// Sorted so renamed columns that collide resolve the same way every run.
	for _, col := range slices.Sorted(maps.Keys(row)) {
		if semantic[col] || col == "" {
			continue
		}
		name := col
		if renamed, ok := f.Rename[col]; ok && renamed != "" {
			name = renamed
		}
		if isList[col] {
			items := SplitItems(row[col])
			if len(items) > 0 {
				rec.Lists[name] = appendUnique(rec.Lists[name], items...)
			}
			continue
		}
		if v := clean(row[col]); v != "" {
			if _, exists := rec.Attributes[name]; !exists {
				rec.Attributes[name] = v
			}
		}
	}

	return rec
}

// enumeratedColumns returns prefix1..prefixK present in the row, ordered by
// their numeric suffix.
func enumeratedColumns(row map[string]string, prefix string) []string {
	if prefix == "" {
		return nil
	}
	type numbered struct {
		col string
		n   int
	}
	var cols []numbered
	for col := range row {
		suffix, ok := strings.CutPrefix(col, prefix)
		if !ok || suffix == "" {
			continue
		}
		k, err := strconv.Atoi(suffix)
		if err != nil || k < 0 {
			continue
		}
		cols = append(cols, numbered{col: col, n: k})
	}
	slices.SortFunc(cols, func(a, b numbered) int { return a.n - b.n })

	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.col
	}
	return out
}

func collectTargets(row map[string]string, listCols, enumerated []string) []string {
	var targets []string
	for _, col := range listCols {
		targets = appendUnique(targets, SplitItems(row[col])...)
	}
	for _, col := range enumerated {
		if v := clean(row[col]); v != "" {
			targets = appendUnique(targets, v)
		}
	}
	return targets
}

// SplitItems splits a comma list, trimming items and dropping absent ones.
func SplitItems(s string) []string {
	var out []string
	for _, item := range model.SplitList(s) {
		if item = clean(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}

// clean trims s and maps the absent token to the empty string.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == Absent {
		return ""
	}
	return s
}
