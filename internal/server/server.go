// Package server exposes the assistant to a thin view over HTTP and a
// websocket update stream.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/loansight/assistant/internal/assistant"
	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/tts"
	"github.com/loansight/assistant/internal/voice"
)

const (
	defaultMaxUploadBytes = 50 << 20
	maxBodyBytes          = 1 << 20
)

var validate = validator.New()

// Voice is the part of the orchestrator the API controls directly
type Voice interface {
	Subscribe(fn func(voice.Update))
	State() voice.State
	Stop()
	ToggleMute() bool
}

// Uploads accepts files for ingestion
type Uploads interface {
	Submit(uploads ...document.Upload) ([]document.Document, error)
}

// Deps are the collaborators behind the API
type Deps struct {
	Store     *document.Store
	Uploads   Uploads
	History   *conversation.History
	Assistant *assistant.Assistant
	Voice     Voice
	Checks    []observability.DependencyCheck

	// MaxUploadBytes bounds one multipart upload request; zero means 50 MB
	MaxUploadBytes int64
	// LevelInterval throttles input level updates on the stream
	LevelInterval time.Duration
}

// Server routes API requests
type Server struct {
	deps   Deps
	hub    *Hub
	logger zerolog.Logger
}

// New creates the API and subscribes its stream to every update source
func New(deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		deps:   deps,
		logger: observability.WithComponent("api"),
	}
	s.hub = NewHub(s.snapshot, deps.LevelInterval)

	deps.Store.Subscribe(s.hub.OnDocumentEvent)
	deps.History.Subscribe(s.hub.OnMessage)
	deps.Voice.Subscribe(s.hub.OnVoiceUpdate)
	return s
}

// Hub returns the update stream
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(s.deps.Checks...))

	mux.HandleFunc("GET /documents", s.listDocuments)
	mux.HandleFunc("POST /documents", s.uploadDocuments)
	mux.HandleFunc("DELETE /documents/{id}", s.removeDocument)
	mux.HandleFunc("PUT /documents/active", s.selectDocument)

	mux.HandleFunc("GET /conversation", s.conversation)
	mux.HandleFunc("GET /conversation/export.pdf", s.exportConversation)
	mux.HandleFunc("POST /conversation/summary", s.summarize)
	mux.HandleFunc("GET /suggestions", s.suggestions)
	mux.HandleFunc("POST /chat", s.chat)

	mux.HandleFunc("GET /voice", s.voiceState)
	mux.HandleFunc("POST /voice/start", s.startVoice)
	mux.HandleFunc("POST /voice/stop", s.stopVoice)
	mux.HandleFunc("POST /voice/mute", s.toggleMute)

	mux.HandleFunc("POST /actions/explain", s.explain)
	mux.HandleFunc("POST /actions/translate", s.translate)
	mux.HandleFunc("POST /actions/read-aloud", s.readAloud)
	mux.HandleFunc("DELETE /actions/read-aloud", s.stopReading)

	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	return mux
}

func (s *Server) snapshot() Snapshot {
	snap := Snapshot{
		Documents: s.deps.Store.List(),
		Messages:  conversation.Render(s.deps.History.Messages()),
		Voice:     s.deps.Voice.State(),
	}
	if doc, ok := s.deps.Store.Active(); ok {
		snap.ActiveID = doc.ID
	}
	return snap
}

// --- documents ---

type documentsResponse struct {
	Documents []document.Document `json:"documents"`
	ActiveID  string              `json:"active_id,omitempty"`
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	resp := documentsResponse{Documents: s.deps.Store.List()}
	if doc, ok := s.deps.Store.Active(); ok {
		resp.ActiveID = doc.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files in upload"))
		return
	}

	uploads := make([]document.Upload, 0, len(headers))
	for _, fh := range headers {
		up, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		uploads = append(uploads, up)
	}

	docs, err := s.deps.Uploads.Submit(uploads...)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, documentsResponse{Documents: docs})
}

func readUpload(fh *multipart.FileHeader) (document.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return document.Upload{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return document.Upload{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return document.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        buf.Bytes(),
	}, nil
}

func (s *Server) removeDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Remove(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	ID string `json:"id" validate:"required"`
}

func (s *Server) selectDocument(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	doc, err := s.deps.Assistant.SelectDocument(req.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- conversation ---

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": conversation.Render(s.deps.History.Messages()),
	})
}

func (s *Server) exportConversation(w http.ResponseWriter, r *http.Request) {
	name := "Loan Document"
	if doc, ok := s.deps.Store.Active(); ok {
		name = doc.Name
	}

	var buf bytes.Buffer
	if err := conversation.ExportPDF(&buf, name, s.deps.History.Messages()); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="conversation.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	msg, err := s.deps.Assistant.Summarize(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation.Render([]conversation.Message{msg})[0])
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": s.deps.Assistant.Suggestions()})
}

type chatRequest struct {
	Text string `json:"text" validate:"required"`
}

type turnResponse struct {
	Channel voice.Channel `json:"channel"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	channel, err := s.deps.Assistant.Chat(r.Context(), req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Channel: channel})
}

// --- voice ---

func (s *Server) voiceState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Voice.State())
}

func (s *Server) startVoice(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assistant.StartVoice(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Voice.State())
}

func (s *Server) stopVoice(w http.ResponseWriter, r *http.Request) {
	s.deps.Voice.Stop()
	writeJSON(w, http.StatusOK, s.deps.Voice.State())
}

func (s *Server) toggleMute(w http.ResponseWriter, r *http.Request) {
	muted := s.deps.Voice.ToggleMute()
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

// --- selection actions ---

type explainRequest struct {
	Selection string `json:"selection" validate:"required"`
}

type translateRequest struct {
	Selection string `json:"selection" validate:"required"`
	Language  string `json:"language" validate:"required"`
}

type readAloudRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decode(w, r, &req) {
		return
	}
	channel, err := s.deps.Assistant.Explain(r.Context(), req.Selection)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Channel: channel})
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decode(w, r, &req) {
		return
	}
	channel, err := s.deps.Assistant.Translate(r.Context(), req.Selection, req.Language)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Channel: channel})
}

func (s *Server) readAloud(w http.ResponseWriter, r *http.Request) {
	var req readAloudRequest
	if !decode(w, r, &req) {
		return
	}
	length, err := s.deps.Assistant.ReadAloud(r.Context(), req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"duration_ms": length.Milliseconds()})
}

func (s *Server) stopReading(w http.ResponseWriter, r *http.Request) {
	s.deps.Assistant.StopReading()
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

// fail maps domain errors onto HTTP status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, voice.ErrSessionActive),
		errors.Is(err, assistant.ErrNoActiveDocument),
		errors.Is(err, voice.ErrNothingToSummarize):
		status = http.StatusConflict
	case errors.Is(err, voice.ErrEmptyText),
		errors.Is(err, assistant.ErrEmptySelection),
		errors.Is(err, assistant.ErrLanguageUnspecified),
		errors.Is(err, tts.ErrEmptyText):
		status = http.StatusBadRequest
	case errors.Is(err, assistant.ErrReadAloudDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, voice.ErrInferenceRequestFailed):
		status = http.StatusBadGateway
	case errors.Is(err, voice.ErrClosed), errors.Is(err, tts.ErrNarratorClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeError(w, status, err)
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = fmt.Errorf("field %s failed %s validation", fe.Field(), fe.Tag())
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
