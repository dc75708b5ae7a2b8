// Package station resolves weather-station identifiers. Short six-digit
// codes map to an ordered list of full candidate ids via a static index
// file; fetchers try candidates in order and keep the first that yields
// data, since not every station reports to every archive in every year.
package station

import (
	"encoding/json"
	"fmt"
	"os"
)

// Index maps short station codes to ordered lists of full candidate ids.
type Index struct {
	candidates map[string][]string
}

// NewIndex creates an Index from an in-memory table.
func NewIndex(table map[string][]string) *Index {
	if table == nil {
		table = make(map[string][]string)
	}
	return &Index{candidates: table}
}

// LoadIndex reads a JSON index file of the form {"725300": ["725300-94846", ...]}.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station index: %w", err)
	}
	var table map[string][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse station index %s: %w", path, err)
	}
	return NewIndex(table), nil
}

// Resolve returns the ordered candidate ids for a station code. Six-digit
// short codes are looked up in the index; anything else is already a full
// id and resolves to itself. An unindexed short code also resolves to
// itself so a fetch can still be attempted.
func (i *Index) Resolve(code string) []string {
	if len(code) == 6 {
		if ids, ok := i.candidates[code]; ok && len(ids) > 0 {
			return ids
		}
	}
	return []string{code}
}
