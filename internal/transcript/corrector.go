package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/duckdebug/internal/transcript/phonetic"
)

// Option is a functional option for [NewCorrector].
type Option func(*Corrector)

// WithPhoneticMatcher replaces the default [phonetic.Matcher].
func WithPhoneticMatcher(m PhoneticMatcher) Option {
	return func(c *Corrector) { c.matcher = m }
}

// Corrector rewrites spoken identifiers. It is stateless and safe for
// concurrent use.
type Corrector struct {
	matcher PhoneticMatcher
}

// NewCorrector returns a Corrector backed by a default [phonetic.Matcher].
func NewCorrector(opts ...Option) *Corrector {
	c := &Corrector{matcher: phonetic.New()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SpokenForm splits an identifier into the words a person would say:
// "bubble_sort" and "BubbleSort" both become "bubble sort", "parseHTTPHeader2"
// becomes "parse http header 2".
func SpokenForm(identifier string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	rs := []rune(identifier)
	for i, r := range rs {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
			continue
		case len(cur) > 0:
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(rs) && unicode.IsLower(rs[i+1]):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return strings.Join(words, " ")
}

type vocabulary struct {
	bySpoken map[string]string
	spoken   []string
	exact    map[string]struct{}
	maxWords int
	prepared *phonetic.Terms
}

// newVocabulary keeps identifiers whose spoken form has at least two words.
// Single words are left to the STT provider.
func newVocabulary(identifiers []string) *vocabulary {
	v := &vocabulary{bySpoken: make(map[string]string), exact: make(map[string]struct{})}
	for _, id := range identifiers {
		v.exact[strings.ToLower(id)] = struct{}{}
		spoken := SpokenForm(id)
		n := len(strings.Fields(spoken))
		if n < 2 {
			continue
		}
		if _, dup := v.bySpoken[spoken]; dup {
			continue
		}
		v.bySpoken[spoken] = id
		v.spoken = append(v.spoken, spoken)
		v.maxWords = max(v.maxWords, n)
	}
	v.prepared = phonetic.Prepare(v.spoken)
	return v
}

type token struct {
	lead, core, trail string
}

func splitToken(s string) token {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }
	start := strings.IndexFunc(s, isWord)
	if start < 0 {
		return token{lead: s}
	}
	end := strings.LastIndexFunc(s, isWord)
	_, size := utf8.DecodeRuneInString(s[end:])
	end += size
	return token{lead: s[:start], core: s[start:end], trail: s[end:]}
}

// Correct replaces word windows of text that sound like a known identifier.
// Windows never span punctuation, and tokens that already are identifiers
// stay untouched. Longer windows win over shorter ones.
func (c *Corrector) Correct(text string, identifiers []string) Result {
	res := Result{Original: text, Corrected: text, Corrections: []Correction{}}
	v := newVocabulary(identifiers)
	if len(v.spoken) == 0 || strings.TrimSpace(text) == "" {
		return res
	}

	match := func(phrase string) (string, float64, bool) {
		return c.matcher.Match(phrase, v.spoken)
	}
	if pm, ok := c.matcher.(*phonetic.Matcher); ok {
		match = func(phrase string) (string, float64, bool) {
			return pm.MatchPrepared(phrase, v.prepared)
		}
	}

	fields := strings.Fields(text)
	tokens := make([]token, len(fields))
	for i, f := range fields {
		tokens[i] = splitToken(f)
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n := window(tokens[i:], v.maxWords)
		matched := false
		for ; n >= 1; n-- {
			if n == 1 {
				if _, ok := v.exact[strings.ToLower(tokens[i].core)]; ok {
					break
				}
			}
			cores := make([]string, n)
			for j := range n {
				cores[j] = tokens[i+j].core
			}
			phrase := strings.Join(cores, " ")
			spoken, conf, ok := match(phrase)
			if !ok {
				continue
			}
			id := v.bySpoken[spoken]
			out = append(out, tokens[i].lead+id+tokens[i+n-1].trail)
			res.Corrections = append(res.Corrections, Correction{
				Original:   phrase,
				Corrected:  id,
				Confidence: conf,
				Method:     "phonetic",
			})
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, fields[i])
			i++
		}
	}
	if len(res.Corrections) > 0 {
		res.Corrected = strings.Join(out, " ")
	}
	return res
}

// window returns how many leading tokens may form one phrase: at most limit,
// stopping at the first token with punctuation between it and the next.
func window(tokens []token, limit int) int {
	n := 0
	for n < len(tokens) && n < limit {
		t := tokens[n]
		if t.core == "" || (n > 0 && t.lead != "") {
			break
		}
		n++
		if t.trail != "" {
			break
		}
	}
	return n
}
