package stt

import "time"

// Transcription is the result of transcribing one recording.
type Transcription struct {
	// Text is the transcribed speech content, trimmed of surrounding space.
	Text string

	// Language is the detected or requested language, if reported.
	Language string

	// Duration is the length of the recording, if reported.
	Duration time.Duration
}
