package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mrpc/internal/errors"
)

// Table is a parsed CSV file: the header row plus each data row as a
// column-name to raw-value map. Values stay strings until validation.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// HasColumn reports whether the header contains the named column
func (t *Table) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Value returns a cell by row index and column name, trimmed
func (t *Table) Value(row int, column string) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][column])
}

var gzipMagic = []byte{0x1f, 0x8b}

// Parse reads CSV bytes into a Table. Gzip-compressed input (a .csv.gz
// upload) is detected by magic bytes and decompressed transparently.
func Parse(data []byte) (*Table, error) {
	var reader io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(data, gzipMagic) {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, errors.Wrap(errors.ValidationFailed, "failed to decompress file", err)
		}
		defer gz.Close()
		reader = gz
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ValidationFailed, "failed to read CSV header", err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	table := &Table{Columns: columns}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ValidationFailed, "failed to read CSV row", err)
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
