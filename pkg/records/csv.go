package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/ritzau/forward-chain/pkg/logging"
)

// ReadCSV yields header-keyed rows from r. Malformed rows are yielded as
// errors and reading continues; an I/O failure ends the sequence.
func ReadCSV(r io.Reader) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("reading header: %w", err))
			return
		}
		for i, h := range header {
			header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var parseErr *csv.ParseError
				if !yield(nil, err) || !errors.As(err, &parseErr) {
					return
				}
				continue
			}
			if blank(record) {
				continue
			}

			row := make(Row, len(header))
			for i, col := range header {
				if i < len(record) {
					row[col] = record[i]
				} else {
					row[col] = ""
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// ReadCSVFile reads every row of the CSV file at path. Malformed rows are
// logged and skipped.
func ReadCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows []Row
	for row, err := range ReadCSV(f) {
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logging.Warn("skipping malformed CSV row", "path", path, "line", parseErr.Line, "error", err)
				continue
			}
			return rows, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, row)
	}

	logging.Debug("read CSV", "path", path, "rows", len(rows))
	return rows, nil
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
