// Package api holds the HTTP paths and JSON wire types shared by the duckd
// backend and the duckdebug client.
package api

// Endpoint paths.
const (
	PathTranscribe    = "/api/audio/process"
	PathSynthesize    = "/api/audio/tts"
	PathAudioPrefix   = "/api/audio/"
	PathQuery         = "/api/rag/query"
	PathRetrievedCode = "/api/rag/retrieved-code"
	PathScrapePython  = "/api/code/scrape-python"
	PathRefresh       = "/api/code/refresh"
	PathVoices        = "/api/voices"
)

// Multipart form field names.
const (
	FieldAudio       = "audio"
	FieldFiles       = "files"
	AudioUploadName  = "recording.webm"
	AudioURLPrefix   = "/audio/"
	CorrelationIDKey = "X-Correlation-ID"
)

// NoDocumentsMessage is the error text returned by the retrieval endpoint
// when nothing has been ingested yet.
const NoDocumentsMessage = "No code documents loaded. Please upload code first."

// TranscribeResponse is the body returned by the transcription endpoint.
type TranscribeResponse struct {
	Transcription string `json:"transcription,omitempty"`
	Error         string `json:"error,omitempty"`
}

// QuestionRequest is the body accepted by the query and retrieval endpoints.
type QuestionRequest struct {
	Question string `json:"question"`
}

// MatchMetadata describes where a retrieved chunk came from. Every field is
// optional.
type MatchMetadata struct {
	FileName     string `json:"file_name,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	Language     string `json:"language,omitempty"`
}

// Match is one retrieved chunk of source code.
type Match struct {
	Content  string        `json:"content"`
	Metadata MatchMetadata `json:"metadata"`
}

// TTSRequest is the body accepted by the synthesis endpoint.
type TTSRequest struct {
	Text string `json:"text"`
}

// TTSResponse is the body returned by the synthesis endpoint. AudioURL is
// relative to the API root, e.g. "/audio/3f2a.mp3".
type TTSResponse struct {
	AudioURL string `json:"audio_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Voice is one synthesis voice offered by the TTS provider.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	// Selected marks the voice duckd answers with.
	Selected bool `json:"selected,omitempty"`
}

// VoicesResponse is the body returned by the voice listing endpoint.
type VoicesResponse struct {
	Voices []Voice `json:"voices"`
}
