package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// SideTables holds the unique values of selected attributes, keyed by attribute.
// They are a convenience for legend building and not part of the network.
type SideTables map[string][]string

// WriteJSON encodes the network as indented JSON.
func WriteJSON(g *Network, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes the network to path, creating parent directories and
// overwriting an existing file.
func ExportJSON(g *Network, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return WriteJSON(g, f)
}

// ReadJSON decodes a {nodes, links} document.
// It does not check that links reference existing nodes; analysis does.
func ReadJSON(r io.Reader) (*Network, error) {
	g := NewNetwork()
	if err := json.NewDecoder(r).Decode(g); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if g.Nodes == nil {
		g.Nodes = make([]*Node, 0)
	}
	if g.Links == nil {
		g.Links = make([]*Link, 0)
	}
	return g, nil
}

// ImportJSON reads a network from the file at path.
func ImportJSON(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSON(f)
}

// SideTableFile is the file name of the side table for attribute. Anything
// but letters, digits, '-' and '_' becomes a single '_', so column headers
// like "Pronouns (she/her)" stay inside the table directory.
func SideTableFile(attribute string) string {
	var b strings.Builder
	sep := false
	for _, r := range attribute {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	name := b.String()
	if name == "" {
		name = "attribute"
	}
	return "unique_" + name + ".json"
}

// ExportSideTables writes one unique_<attribute>.json file per table into dir.
// Attributes whose names clash after SideTableFile get a numeric suffix. A
// table that cannot be written does not stop the others; the joined errors
// are returned with the paths that were written.
func ExportSideTables(tables SideTables, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}

	var errs []error
	written := make([]string, 0, len(tables))
	used := make(map[string]bool, len(tables))
	for _, attr := range slices.Sorted(maps.Keys(tables)) {
		name := SideTableFile(attr)
		for i := 2; used[name]; i++ {
			name = strings.TrimSuffix(SideTableFile(attr), ".json") + "_" + strconv.Itoa(i) + ".json"
		}
		used[name] = true

		data, err := json.MarshalIndent(tables[attr], "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", attr, err))
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}
