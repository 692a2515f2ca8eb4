// Package transcript fixes speech-to-text output that mangles code
// identifiers.
//
// A spoken question such as "why does my bubble sort loop forever" refers to
// the function bubble_sort. The [Corrector] rewrites word windows whose
// pronunciation matches the spoken form of a known identifier, so that
// retrieval and the answer prompt see the real name.
//
// Every [Correction] records the replaced text and its confidence so callers
// can log or display what changed.
package transcript

// Correction captures one substitution.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string

	// Corrected is the identifier that replaced it.
	Corrected string

	// Confidence is the matcher score in [0, 1].
	Confidence float64

	// Method names the stage that produced the substitution ("phonetic").
	Method string
}

// Result is the output of [Corrector.Correct].
type Result struct {
	// Original is the uncorrected transcript text.
	Original string

	// Corrected is the text with every substitution applied.
	Corrected string

	// Corrections lists the substitutions in order of appearance. It is empty
	// but non-nil when nothing changed.
	Corrections []Correction
}

// PhoneticMatcher resolves a phrase to the most similar candidate phrase.
// When matched is false, corrected equals phrase and confidence is 0.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	Match(phrase string, candidates []string) (corrected string, confidence float64, matched bool)
}
