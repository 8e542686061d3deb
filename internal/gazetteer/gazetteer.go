// Package gazetteer loads the reference corpus of canonical UK street names
// used to prefer attested spellings during address correction.
package gazetteer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/waterbill-audit/internal/billing"
)

// Column position of the canonical street name within each reference CSV row.
const streetColumn = 2

// Placeholder values excluded from the reference set.
const placeholderName = "sea"

// Gazetteer is the read-only set of canonical street names. It is loaded once
// per pipeline run and may be shared by all workers without locking.
type Gazetteer struct {
	names map[string]struct{}
}

// Load reads every CSV file in the folder and extracts canonical street
// names. An unreadable folder, or a folder yielding no usable names, is a
// fatal configuration error.
func Load(dir string) (*Gazetteer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &billing.ConfigError{Subject: "gazetteer folder", Message: dir, Err: err}
	}

	g := &Gazetteer{names: make(map[string]struct{})}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		if err := g.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}
	if len(g.names) == 0 {
		return nil, &billing.ConfigError{Subject: "gazetteer folder", Message: "no usable street names found in " + dir}
	}
	return g, nil
}

func (g *Gazetteer) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return &billing.ConfigError{Subject: "gazetteer file", Message: path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	rowIndex := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowIndex++
			continue
		}
		// first row is the header
		if rowIndex == 0 {
			rowIndex++
			continue
		}
		rowIndex++
		if len(row) <= streetColumn {
			continue
		}
		street := strings.TrimSpace(strings.TrimPrefix(row[streetColumn], "\ufeff"))
		if street == "" || len(street) <= 2 || strings.EqualFold(street, placeholderName) {
			continue
		}
		g.names[street] = struct{}{}
	}
	return nil
}

// Contains reports whether the exact street name is attested in the corpus.
func (g *Gazetteer) Contains(name string) bool {
	_, ok := g.names[name]
	return ok
}

// Len returns the number of distinct canonical names loaded.
func (g *Gazetteer) Len() int {
	return len(g.names)
}
