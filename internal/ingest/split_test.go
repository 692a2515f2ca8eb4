package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText_Short(t *testing.T) {
	t.Parallel()
	got := splitText("def foo(): pass\n", 1200, 200)
	if len(got) != 1 || got[0] != "def foo(): pass\n" {
		t.Errorf("want the text unchanged, got %q", got)
	}
	if got := splitText("   \n", 1200, 200); got != nil {
		t.Errorf("want nil for blank text, got %q", got)
	}
}

func TestSplitText_LongWithOverlap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 100 {
		b.WriteString(strings.Repeat(string(rune('a'+i%26)), 39))
		b.WriteString("\n")
	}
	text := b.String()

	const size, overlap = 400, 80
	pieces := splitText(text, size, overlap)
	if len(pieces) < 2 {
		t.Fatalf("want several pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if n := utf8.RuneCountInString(p); n > size {
			t.Errorf("piece %d: want at most %d runes, got %d", i, size, n)
		}
		if i < len(pieces)-1 && !strings.HasSuffix(p, "\n") {
			t.Errorf("piece %d: want a cut at a line boundary", i)
		}
	}
	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1]
		tail := prev[len(prev)-overlap:]
		if !strings.HasPrefix(pieces[i], tail) {
			t.Errorf("piece %d: want it to start with the last %d runes of the previous piece", i, overlap)
		}
	}
	if !strings.HasSuffix(text, pieces[len(pieces)-1]) {
		t.Error("want the last piece to end the text")
	}
}

func TestSplitText_NoNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("ü", 2500)
	pieces := splitText(text, 1200, 200)
	if len(pieces) != 3 {
		t.Fatalf("want 3 pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if !utf8.ValidString(p) {
			t.Errorf("piece %d is not valid UTF-8", i)
		}
	}
}
