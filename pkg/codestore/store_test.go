package codestore

import (
	"slices"
	"testing"
)

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	files := []File{
		{
			Path:      "sorting/bubble_sort.py",
			ClassName: "Sorter",
			Functions: []Function{{Name: "bubble_sort"}, {Name: "swap"}},
		},
		{
			Path:      "search/binary_search.py",
			Functions: []Function{{Name: "binary_search"}, {Name: "swap"}},
		},
	}

	got := Identifiers(files)
	want := []string{"Sorter", "bubble_sort", "swap", "binary_search"}
	if !slices.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}

	if got := Identifiers(nil); len(got) != 0 {
		t.Errorf("want no identifiers for no files, got %v", got)
	}
}
