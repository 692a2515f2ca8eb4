package tts

import "strings"

// VoiceProfile describes a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Speech is one synthesised audio file.
type Speech struct {
	// Audio is the encoded audio (MP3 unless the provider was configured
	// otherwise).
	Audio []byte

	// ContentType is the MIME type of Audio, e.g. "audio/mpeg".
	ContentType string
}

// ContentTypeFor maps an output format name such as "mp3_44100_128", "mp3",
// "wav" or "pcm_16000" to a MIME type.
func ContentTypeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "wav"):
		return "audio/wav"
	case strings.HasPrefix(format, "opus"):
		return "audio/ogg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/L16"
	case format == "aac":
		return "audio/aac"
	case format == "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
