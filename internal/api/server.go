package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/config"
	"docgen-backend/internal/dispatch"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/models"
	"docgen-backend/internal/progress"
	"docgen-backend/internal/provider"
	"docgen-backend/internal/ratelimit"
	"docgen-backend/internal/telemetry"
)

// supportedTypes maps accepted upload MIME types to their file extensions.
var supportedTypes = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Server wires the HTTP surface over the job engine.
type Server struct {
	cfg        config.Config
	store      *jobstore.Store
	registry   *agent.Registry
	dispatcher dispatch.Dispatcher
	watcher    *progress.Watcher
	limiter    *ratelimit.Limiter
	log        *zap.SugaredLogger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(cfg config.Config, store *jobstore.Store, registry *agent.Registry, dispatcher dispatch.Dispatcher, watcher *progress.Watcher, limiter *ratelimit.Limiter, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		watcher:    watcher,
		limiter:    limiter,
		log:        log.With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/chat/completions", s.handleChat)
	r.Get("/agents", s.handleListAgents)
	r.Post("/agents/run", s.handleRunAgent)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/files/types", s.handleFileTypes)
	r.Post("/files/upload", s.handleUpload)
	r.Handle(s.cfg.StaticBase+"/*", http.StripPrefix(s.cfg.StaticBase+"/", http.FileServer(http.Dir(s.cfg.OutputDir))))
	return r
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.registry.List()})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
}

// handleChat serves plain conversation mode: no job, no agent, one provider
// call. User messages are flattened into a single prompt; other roles are
// carried for the client's benefit only and never reach the model.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}
	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}
	gen, err := provider.ForModel(s.cfg, s.log, model)
	if err != nil {
		http.Error(w, "unsupported model", http.StatusBadRequest)
		return
	}

	var parts []string
	for _, m := range req.Messages {
		if m.Role == "user" {
			parts = append(parts, m.Content)
		}
	}
	text, err := gen.Generate(r.Context(), strings.Join(parts, "\n"))
	if err != nil {
		s.log.Errorw("chat completion failed", "model", model, "error", err)
		http.Error(w, "generation failed", http.StatusInternalServerError)
		return
	}

	if !req.Stream {
		writeJSON(w, http.StatusOK, map[string]string{"result": text})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	for _, chunk := range strings.Split(text, ". ") {
		writeFrame(w, chunk)
		flusher.Flush()
	}
}

type runRequest struct {
	Agent     string           `json:"agent"`
	InputText string           `json:"input_text"`
	Files     []models.FileRef `json:"files"`
}

func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, err := s.registry.Resolve(req.Agent); err != nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	// Reject empty input here so the job never exists, let alone runs.
	if req.InputText == "" && len(req.Files) == 0 {
		http.Error(w, "input_text or files required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), clientFromRequest(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	id := s.store.CreateJob(req.Agent, fmt.Sprintf("Run agent %s", req.Agent))
	task := dispatch.Task{JobID: id, Agent: req.Agent, InputText: req.InputText, Files: req.Files}
	if err := s.dispatcher.Dispatch(r.Context(), task); err != nil {
		s.log.Errorw("dispatch failed", "job_id", id, "error", err)
		_ = s.store.Fail(id, "dispatch failed: "+err.Error())
		http.Error(w, "dispatch failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("stream") == "true" {
		s.streamJob(w, r, id)
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// terminalEvent is the final SSE payload carrying the job's outcome.
type terminalEvent struct {
	Status        string         `json:"status"`
	Result        *models.Result `json:"result,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// streamJob serves a job's progress as Server-Sent Events: one data frame
// per log line, then a single JSON frame with the terminal state. A `from`
// query parameter lets a reconnecting client resume past lines it has seen.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request, id string) {
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	ch, err := s.watcher.Watch(r.Context(), id, from)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range ch {
		if ev.Terminal {
			payload, err := json.Marshal(terminalEvent{
				Status:        ev.Status,
				Result:        ev.Result,
				FailureReason: ev.FailureReason,
			})
			if err != nil {
				return
			}
			writeFrame(w, string(payload))
			flusher.Flush()
			return
		}
		writeFrame(w, ev.Line)
		flusher.Flush()
	}
}

// writeFrame emits one SSE event. Embedded newlines become additional data:
// lines of the same event, so a multi-line payload cannot split into two
// frames.
func writeFrame(w io.Writer, payload string) {
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

func (s *Server) handleFileTypes(w http.ResponseWriter, _ *http.Request) {
	types := make([]string, 0, len(supportedTypes))
	for t := range supportedTypes {
		types = append(types, t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"supported_types": types})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "no files supplied", http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	metadata := make([]models.FileRef, 0, len(headers))
	for _, fh := range headers {
		contentType := fh.Header.Get("Content-Type")
		ext, ok := supportedTypes[contentType]
		if !ok {
			http.Error(w, fmt.Sprintf("unsupported file type: %s", contentType), http.StatusBadRequest)
			return
		}
		name := filepath.Base(fh.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "upload" + ext
		}
		dest, err := s.storeUpload(fh, name)
		if err != nil {
			s.log.Errorw("store upload failed", "filename", name, "error", err)
			http.Error(w, "failed to store file", http.StatusInternalServerError)
			return
		}
		telemetry.FilesUploaded.Inc()
		metadata = append(metadata, models.FileRef{Filename: name, Path: dest, ContentType: contentType})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": metadata})
}

// storeUpload writes one upload under the upload dir, suffixing the name on
// collision rather than overwriting an earlier upload.
func (s *Server) storeUpload(fh *multipart.FileHeader, name string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest := filepath.Join(s.cfg.UploadDir, name)
	ext := filepath.Ext(dest)
	base := dest[:len(dest)-len(ext)]
	for counter := 1; ; counter++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", err
	}
	return dest, nil
}

func clientFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
