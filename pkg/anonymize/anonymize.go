// Package anonymize replaces university identifiers (two or three letters
// followed by four digits) with opaque codes before data leaves the
// survey owner, and flattens rows to one forward per row.
package anonymize

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ritzau/forward-chain/pkg/logging"
	"github.com/ritzau/forward-chain/pkg/records"
)

var (
	identifier = regexp.MustCompile(`^([A-Za-z]{2,3})(\d{4})$`)
	// containsID preselects cells worth splitting.
	containsID = regexp.MustCompile(`[A-Za-z]{2,3}\d{4}`)
)

// Mapping maps upper-case letter prefixes to five digit codes.
type Mapping map[string]string

// BuildMapping assigns a distinct code to every two and three letter
// prefix, in an order shuffled by rng.
func BuildMapping(rng *rand.Rand) Mapping {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	combos := make([]string, 0, 26*26*27)
	for _, a := range letters {
		for _, b := range letters {
			combos = append(combos, string(a)+string(b))
			for _, c := range letters {
				combos = append(combos, string(a)+string(b)+string(c))
			}
		}
	}
	rng.Shuffle(len(combos), func(i, j int) {
		combos[i], combos[j] = combos[j], combos[i]
	})

	m := make(Mapping, len(combos))
	for i, s := range combos {
		m[s] = fmt.Sprintf("%05d", i+1)
	}
	return m
}

// LoadMapping reads a mapping written by Save.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return m, nil
}

// LoadOrBuildMapping loads the mapping at path, or builds one from seed and
// saves it there so later runs encode identically.
func LoadOrBuildMapping(path string, seed uint64) (Mapping, error) {
	m, err := LoadMapping(path)
	if err == nil {
		logging.Debug("loaded identifier mapping", "path", path, "entries", len(m))
		return m, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	m = BuildMapping(rand.New(rand.NewPCG(seed, seed^0xdeadbeef)))
	if err := m.Save(path); err != nil {
		return nil, err
	}
	logging.Info("wrote identifier mapping", "path", path, "entries", len(m))
	return m, nil
}

// Save writes the mapping as indented JSON.
func (m Mapping) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mapping directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EncodeCell rewrites every identifier in a comma list to digits followed
// by the prefix code. Other items are trimmed and kept.
func (m Mapping) EncodeCell(text string) string {
	parts := strings.Split(text, ",")
	for i, part := range parts {
		t := strings.TrimSpace(part)
		match := identifier.FindStringSubmatch(t)
		if match == nil {
			parts[i] = t
			continue
		}
		code, ok := m[strings.ToUpper(match[1])]
		if !ok {
			parts[i] = t
			continue
		}
		parts[i] = match[2] + code
	}
	return strings.Join(parts, ", ")
}

// EncodeRow encodes every cell of row that contains an identifier.
func (m Mapping) EncodeRow(row records.Row) records.Row {
	out := make(records.Row, len(row))
	for k, v := range row {
		if containsID.MatchString(v) {
			v = m.EncodeCell(v)
		}
		out[k] = v
	}
	return out
}

// Options names the columns Convert explodes and sorts by.
type Options struct {
	Group     string
	Next      string
	Timestamp string
}

// DefaultOptions matches records.DefaultFields.
func DefaultOptions() Options {
	f := records.DefaultFields()
	return Options{Group: f.Group, Next: f.Next[0], Timestamp: f.Timestamp}
}

// Explode yields one row per (group, next target) pair. Rows without groups
// or targets are kept once with the field empty.
func Explode(row records.Row, opts Options) []records.Row {
	groups := records.SplitItems(row[opts.Group])
	if len(groups) == 0 {
		groups = []string{""}
	}
	next := records.SplitItems(row[opts.Next])
	if len(next) == 0 {
		next = []string{""}
	}

	out := make([]records.Row, 0, len(groups)*len(next))
	for _, g := range groups {
		for _, n := range next {
			r := maps.Clone(row)
			if r == nil {
				r = make(records.Row)
			}
			r[opts.Group] = g
			if _, ok := row[opts.Next]; ok {
				r[opts.Next] = n
			}
			out = append(out, r)
		}
	}
	return out
}

// Convert reads CSV from in, encodes identifiers, explodes rows, sorts them
// by group and time and writes CSV to out with the input's column order.
func Convert(in io.Reader, out io.Writer, m Mapping, opts Options) (int, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []records.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logging.Warn("skipping malformed CSV row", "line", parseErr.Line, "error", err)
				continue
			}
			return 0, err
		}
		row := make(records.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, Explode(m.EncodeRow(row), opts)...)
	}

	type keyed struct {
		row records.Row
		ts  records.Timestamp
	}
	sorted := make([]keyed, len(rows))
	for i, r := range rows {
		ts, _ := records.ParseTimestamp(r[opts.Timestamp])
		sorted[i] = keyed{row: r, ts: ts}
	}
	slices.SortStableFunc(sorted, func(a, b keyed) int {
		if c := records.CompareGroups(a.row[opts.Group], b.row[opts.Group]); c != 0 {
			return c
		}
		return a.ts.Compare(b.ts)
	})

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return 0, err
	}
	record := make([]string, len(header))
	for _, k := range sorted {
		for i, col := range header {
			record[i] = k.row[col]
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(sorted), w.Error()
}

// ConvertFile runs Convert from inPath to outPath.
func ConvertFile(inPath, outPath string, m Mapping, opts Options) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	n, err := Convert(in, out, m, opts)
	if err != nil {
		return fmt.Errorf("convert %s: %w", inPath, err)
	}
	logging.Info("wrote encoded rows", "path", outPath, "rows", n)
	return nil
}
