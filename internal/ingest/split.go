package ingest

import "strings"

// Default chunk geometry in characters.
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// splitText cuts text into pieces of at most size runes, each starting
// overlap runes before the previous one ended. A cut prefers the last newline
// inside the window when that still makes progress past the overlap.
// Whitespace-only pieces are dropped.
func splitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var out []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end - 1; i > start+overlap; i-- {
				if runes[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if piece := string(runes[start:end]); strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return out
}
