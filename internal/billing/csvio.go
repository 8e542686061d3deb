package billing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a billing dataset with its original column order preserved.
type Table struct {
	Header []string
	Rows   []Record
}

// ReadTable loads a billing CSV. A missing file or unreadable header is a
// fatal configuration error; malformed data rows are skipped.
func ReadTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Subject: "input file", Message: path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &ConfigError{Subject: "input file", Message: "failed to read CSV header", Err: err}
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	table := &Table{Header: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		var rec Record
		for i, col := range header {
			if i < len(row) {
				rec.Set(col, row[i])
			} else {
				rec.Set(col, "")
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, col := range t.Header {
		if col == name {
			return true
		}
	}
	return false
}

// RequireColumns verifies that every named column is present, returning a
// fatal configuration error on the first one missing.
func (t *Table) RequireColumns(names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return &ConfigError{Subject: "input columns", Message: fmt.Sprintf("required column %q is missing", name)}
		}
	}
	return nil
}

// RowValues serializes one row in header order.
func (t *Table) RowValues(i int) []string {
	values := make([]string, len(t.Header))
	for j, col := range t.Header {
		values[j] = t.Rows[i].Get(col)
	}
	return values
}

// WriteCSV writes the table under the original header, creating parent
// directories as needed.
func (t *Table) WriteCSV(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range t.Rows {
		if err := writer.Write(t.RowValues(i)); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return nil
}
