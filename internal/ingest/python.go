package ingest

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/duckdebug/pkg/codestore"
)

var (
	classRe = regexp.MustCompile(`class\s+(\w+)\s*(?:\([^)]*\))?\s*:`)
	defRe   = regexp.MustCompile(`def\s+(\w+)\s*\(([^)]*)\)\s*(?:->.*?)?:`)
)

// ParsePython builds a [codestore.File] for the Python source at relPath. The
// first class declaration becomes ClassName; every def becomes a Function in
// declaration order.
func ParsePython(relPath, content string, now time.Time) codestore.File {
	f := codestore.File{
		Path:         relPath,
		Name:         path.Base(relPath),
		Extension:    ".py",
		Language:     "Python",
		Content:      content,
		LastModified: now,
	}
	if m := classRe.FindStringSubmatch(content); m != nil {
		f.ClassName = m[1]
	}
	for _, m := range defRe.FindAllStringSubmatch(content, -1) {
		f.Functions = append(f.Functions, codestore.Function{
			Name:      m[1],
			Signature: m[1] + "(" + m[2] + ")",
		})
	}
	return f
}

// segment is a contiguous piece of a file attributed to one function, or to
// none for module-level code.
type segment struct {
	function string
	text     string
}

// segments splits content at every def. Each def owns the text from the start
// of its line up to the start of the next def's line. Non-blank text before
// the first def is a module-level segment.
func segments(content string) []segment {
	locs := defRe.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []segment{{text: content}}
	}

	lineStart := func(i int) int {
		return strings.LastIndexByte(content[:i], '\n') + 1
	}

	var out []segment
	if head := content[:lineStart(locs[0][0])]; strings.TrimSpace(head) != "" {
		out = append(out, segment{text: head})
	}
	for i, loc := range locs {
		start := lineStart(loc[0])
		end := len(content)
		if i+1 < len(locs) {
			end = lineStart(locs[i+1][0])
		}
		if start >= end {
			continue
		}
		out = append(out, segment{function: content[loc[2]:loc[3]], text: content[start:end]})
	}
	return out
}
