// Package phonetic matches spoken phrases against the spoken form of code
// identifiers using Double Metaphone codes and Jaro-Winkler similarity.
//
// A phrase matches a term when both have the same number of words and every
// word pair sounds alike, or, when the word counts differ, when the
// concatenated forms sound alike ("bubblesort" against "bubble sort"). A pair sounds
// alike when it shares a Double Metaphone code; its similarity is the
// Jaro-Winkler score of the words. The weakest pair decides the phrase score,
// so "bubble gum" never matches "bubble sort".
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for a phrase whose words all
// share a phonetic code with the term. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score for a phrase without phonetic
// agreement. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type word struct {
	text  string
	codes [2]string
}

func newWord(s string) word {
	p, alt := matchr.DoubleMetaphone(s)
	return word{text: s, codes: [2]string{p, alt}}
}

func (w word) soundsLike(o word) bool {
	for _, a := range w.codes {
		if a == "" {
			continue
		}
		for _, b := range o.codes {
			if a == b {
				return true
			}
		}
	}
	return false
}

// Term is a precomputed candidate phrase.
type Term struct {
	phrase string
	words  []word
	joined word
}

// Terms is a prepared candidate list. Build it once per vocabulary with
// [Prepare] and reuse it for every window of a transcript.
type Terms struct {
	terms    []Term
	maxWords int
}

// Prepare lowercases and encodes phrases. Blank phrases are dropped.
func Prepare(phrases []string) *Terms {
	ts := &Terms{}
	for _, p := range phrases {
		fields := strings.Fields(strings.ToLower(p))
		if len(fields) == 0 {
			continue
		}
		t := Term{phrase: p, joined: newWord(strings.Join(fields, ""))}
		for _, f := range fields {
			t.words = append(t.words, newWord(f))
		}
		ts.terms = append(ts.terms, t)
		ts.maxWords = max(ts.maxWords, len(fields))
	}
	return ts
}

// MaxWords returns the word count of the longest prepared phrase.
func (ts *Terms) MaxWords() int { return ts.maxWords }

// Len returns the number of prepared phrases.
func (ts *Terms) Len() int { return len(ts.terms) }

// Match returns the phrase from terms that best matches phrase. When matched
// is false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(phrase, Prepare(terms))
}

// MatchPrepared is [Matcher.Match] against a prepared list.
func (m *Matcher) MatchPrepared(phrase string, ts *Terms) (corrected string, confidence float64, matched bool) {
	fields := strings.Fields(strings.ToLower(phrase))
	if len(fields) == 0 || ts == nil || len(ts.terms) == 0 {
		return phrase, 0, false
	}
	input := make([]word, len(fields))
	for i, f := range fields {
		input[i] = newWord(f)
	}
	joined := newWord(strings.Join(fields, ""))

	var (
		best      string
		bestScore float64
		bestPhon  bool
	)
	for _, t := range ts.terms {
		score, phon := align(input, joined, t)
		switch {
		case phon && score >= m.phoneticThreshold:
			if !bestPhon || score > bestScore {
				best, bestScore, bestPhon = t.phrase, score, true
			}
		case !phon && !bestPhon && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = t.phrase, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

func align(input []word, joined word, t Term) (score float64, phonetic bool) {
	if len(input) != len(t.words) {
		if !joined.soundsLike(t.joined) {
			return 0, false
		}
		return matchr.JaroWinkler(joined.text, t.joined.text, false), true
	}
	score, phonetic = 1, true
	for i, w := range input {
		score = min(score, matchr.JaroWinkler(w.text, t.words[i].text, false))
		phonetic = phonetic && w.soundsLike(t.words[i])
	}
	return score, phonetic
}
