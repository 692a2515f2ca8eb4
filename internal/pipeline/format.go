package pipeline

import (
	"fmt"
	"strings"

	"github.com/MrWong99/duckdebug/pkg/api"
)

// matchSeparator sits between two rendered matches.
var matchSeparator = "\n\n" + strings.Repeat("=", 40) + "\n\n"

// FormatContext renders retrieved matches for the code panel, preserving
// their order:
//
//	// [Match 1] bubble_sort() in bubble_sort.py
//	def bubble_sort(arr): ...
//
// Matches without a function name use "// [Match i] file"; a missing file
// name renders as "unknown".
func FormatContext(matches []api.Match) string {
	parts := make([]string, 0, len(matches))
	for i, m := range matches {
		file := m.Metadata.FileName
		if file == "" {
			file = "unknown"
		}
		var header string
		if fn := m.Metadata.FunctionName; fn != "" {
			header = fmt.Sprintf("// [Match %d] %s() in %s", i+1, fn, file)
		} else {
			header = fmt.Sprintf("// [Match %d] %s", i+1, file)
		}
		parts = append(parts, header+"\n"+m.Content)
	}
	return strings.Join(parts, matchSeparator)
}
