package station

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestIndex_Resolve verifies short-code lookup, identity fallback for full
// ids, and identity fallback for unindexed short codes.
func TestIndex_Resolve(t *testing.T) {
	idx := NewIndex(map[string][]string{
		"725300": {"725300-94846", "725300-99999"},
	})

	tests := []struct {
		name string
		code string
		want []string
	}{
		{name: "indexed short code", code: "725300", want: []string{"725300-94846", "725300-99999"}},
		{name: "unindexed short code", code: "123456", want: []string{"123456"}},
		{name: "full id untouched", code: "725300-94846", want: []string{"725300-94846"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := idx.Resolve(tc.code)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte(`{"725300": ["725300-94846"]}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	got := idx.Resolve("725300")
	if len(got) != 1 || got[0] != "725300-94846" {
		t.Errorf("Resolve() = %v, want [725300-94846]", got)
	}
}

func TestLoadIndex_Missing(t *testing.T) {
	if _, err := LoadIndex(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("LoadIndex(missing) error = nil, want error")
	}
}
