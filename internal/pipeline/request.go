package pipeline

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when a [Request] field is written before the
// stage that precedes it.
var ErrOutOfOrder = errors.New("pipeline: request field written out of stage order")

// Request accumulates the products of one run. Fields are filled strictly left
// to right: transcript, retrieved context, answer, audio URL.
type Request struct {
	question string
	filled   int

	transcript string
	context    string
	answer     string
	audioURL   string
}

// NewRequest starts a request. question is the typed question, or empty when
// the run starts from a recording.
func NewRequest(question string) *Request {
	return &Request{question: question}
}

func (r *Request) advance(want int, field string) error {
	if r.filled != want {
		return fmt.Errorf("%w: %s", ErrOutOfOrder, field)
	}
	r.filled++
	return nil
}

// SetTranscript records the question text.
func (r *Request) SetTranscript(s string) error {
	if err := r.advance(0, "transcript"); err != nil {
		return err
	}
	r.transcript = s
	return nil
}

// SetContext records the formatted retrieval result.
func (r *Request) SetContext(s string) error {
	if err := r.advance(1, "context"); err != nil {
		return err
	}
	r.context = s
	return nil
}

// SetAnswer records the answer text.
func (r *Request) SetAnswer(s string) error {
	if err := r.advance(2, "answer"); err != nil {
		return err
	}
	r.answer = s
	return nil
}

// SetAudioURL records where the synthesized answer can be fetched.
func (r *Request) SetAudioURL(s string) error {
	if err := r.advance(3, "audio URL"); err != nil {
		return err
	}
	r.audioURL = s
	return nil
}

func (r *Request) Question() string   { return r.question }
func (r *Request) Transcript() string { return r.transcript }
func (r *Request) Context() string    { return r.context }
func (r *Request) Answer() string     { return r.answer }
func (r *Request) AudioURL() string   { return r.audioURL }

// result converts the request into a [Result].
func (r *Request) result() Result {
	return Result{
		Transcript: r.transcript,
		Context:    r.context,
		Answer:     r.answer,
		AudioURL:   r.audioURL,
	}
}
