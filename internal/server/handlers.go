package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MrWong99/duckdebug/internal/ingest"
	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/rag"
	"github.com/MrWong99/duckdebug/internal/speech"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/provider/stt"
	"github.com/MrWong99/duckdebug/pkg/provider/tts"
)

// Error bodies returned to the client.
const (
	msgNoAudio         = "No audio file provided"
	msgProcessAudio    = "Failed to process audio"
	msgNoText          = "No text provided"
	msgGenerateSpeech  = "Failed to generate speech"
	msgAudioNotFound   = "Audio file not found"
	msgFetchAudio      = "Failed to fetch audio file"
	msgNoQuestion      = "No question provided"
	msgRAGResponse     = "Failed to get RAG response"
	msgRetrievedCode   = "Failed to get retrieved code"
	msgNoPythonFiles   = "No Python files provided"
	msgScrape          = "Failed to scrape Python files."
	msgRefreshed       = "Vectorstore refreshed successfully."
	msgNothingToDo     = "No documents found. Vectorstore not initialized."
	msgRefresh         = "Failed to refresh vectorstore"
	msgBadRequestBody  = "Invalid request body"
	msgRequestTooLarge = "Request body too large"
	msgListVoices      = "Failed to list voices"
)

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}
	headers := form.File[api.FieldAudio]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}
	data, err := readPart(headers[0])
	if err != nil {
		log.Warn("read audio upload", "err", err)
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}

	ids := s.identifiers(ctx)
	clip := stt.Audio{
		Data:        data,
		Filename:    headers[0].Filename,
		ContentType: headers[0].Header.Get("Content-Type"),
	}
	res, err := s.cfg.STT.Transcribe(ctx, clip, stt.Options{Language: s.cfg.Language, Prompt: sttPrompt(ids)})
	if errors.Is(err, stt.ErrEmptyAudio) {
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}
	if err != nil {
		log.Error("transcription failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgProcessAudio)
		return
	}

	text := res.Text
	if s.cfg.Corrector != nil && len(ids) > 0 {
		c := s.cfg.Corrector.Correct(text, ids)
		for _, fix := range c.Corrections {
			log.Debug("identifier corrected", "from", fix.Original, "to", fix.Corrected, "confidence", fix.Confidence)
		}
		text = c.Corrected
	}
	writeJSON(w, http.StatusOK, api.TranscribeResponse{Transcription: text})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.TTSRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, msgNoText)
		return
	}

	out, err := s.cfg.TTS.Synthesize(ctx, req.Text, s.cfg.Voice)
	if errors.Is(err, tts.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, msgNoText)
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("speech synthesis failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgGenerateSpeech)
		return
	}
	name, err := s.cfg.Speech.Save(out.Audio, out.ContentType)
	if err != nil {
		observe.Logger(ctx).Error("store synthesized speech", "err", err)
		writeError(w, http.StatusInternalServerError, msgGenerateSpeech)
		return
	}
	writeJSON(w, http.StatusOK, api.TTSResponse{AudioURL: api.AudioURLPrefix + name})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, contentType, err := s.cfg.Speech.Open(name)
	if errors.Is(err, speech.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgAudioNotFound)
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("open audio file", "file", name, "err", err)
		writeError(w, http.StatusInternalServerError, msgFetchAudio)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgFetchAudio)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.QuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := s.cfg.RAG.Answer(ctx, req.Question)
	if errors.Is(err, rag.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, msgNoQuestion)
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("answer failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgRAGResponse)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, answer)
}

func (s *Server) handleRetrievedCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.QuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := s.cfg.RAG.Retrieve(ctx, req.Question)
	switch {
	case errors.Is(err, rag.ErrNoDocuments):
		writeError(w, http.StatusBadRequest, api.NoDocumentsMessage)
		return
	case errors.Is(err, rag.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, msgNoQuestion)
		return
	case err != nil:
		observe.Logger(ctx).Error("retrieval failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgRetrievedCode)
		return
	}
	writeJSON(w, http.StatusOK, toMatches(results))
}

// toMatches converts store results to the wire format, keeping order.
func toMatches(results []codestore.Result) []api.Match {
	out := make([]api.Match, 0, len(results))
	for _, r := range results {
		out = append(out, api.Match{
			Content: r.Chunk.Content,
			Metadata: api.MatchMetadata{
				FileName:     r.Chunk.FileName,
				FilePath:     r.Chunk.FilePath,
				FunctionName: r.Chunk.FunctionName,
				ClassName:    r.Chunk.ClassName,
				Language:     r.Chunk.Language,
			},
		})
	}
	return out
}

func (s *Server) handleScrapePython(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}
	headers := form.File[api.FieldFiles]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, msgNoPythonFiles)
		return
	}
	uploads := make([]ingest.Upload, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			log.Warn("read source upload", "file", h.Filename, "err", err)
			writeError(w, http.StatusBadRequest, msgBadRequestBody)
			return
		}
		uploads = append(uploads, ingest.Upload{Path: uploadPath(h), Content: data})
	}

	sum, err := s.cfg.Ingest.Ingest(ctx, uploads)
	if errors.Is(err, ingest.ErrNoFiles) {
		writeError(w, http.StatusBadRequest, msgNoPythonFiles)
		return
	}
	if err != nil {
		log.Error("ingestion failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgScrape)
		return
	}
	if len(sum.Skipped) > 0 {
		log.Info("uploads skipped", "files", sum.Skipped)
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("%d Python files scraped and saved.", sum.Files),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := s.cfg.Ingest.Reindex(ctx)
	if err != nil {
		observe.Logger(ctx).Error("reindex failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgRefresh)
		return
	}
	msg := msgRefreshed
	if sum.Files == 0 {
		msg = msgNothingToDo
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: msg})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profiles, err := s.cfg.TTS.ListVoices(ctx)
	if err != nil {
		observe.Logger(ctx).Error("list voices failed", "err", err)
		writeError(w, http.StatusBadGateway, msgListVoices)
		return
	}
	out := api.VoicesResponse{Voices: make([]api.Voice, 0, len(profiles))}
	for _, v := range profiles {
		out.Voices = append(out.Voices, api.Voice{
			ID:       v.ID,
			Name:     v.Name,
			Provider: v.Provider,
			Selected: v.ID == s.cfg.Voice.ID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseMultipart reads a size-limited multipart form. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgRequestTooLarge)
		} else {
			writeError(w, http.StatusBadRequest, msgBadRequestBody)
		}
		return nil, false
	}
	return r.MultipartForm, true
}

// uploadPath returns the client-supplied relative path of an uploaded file.
// multipart.FileHeader.Filename keeps only the base name, so the directory
// part is recovered from the raw Content-Disposition header.
func uploadPath(h *multipart.FileHeader) string {
	if _, params, err := mime.ParseMediaType(h.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return h.Filename
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequestBody)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
