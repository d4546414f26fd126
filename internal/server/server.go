// Package server provides the HTTP front end of the assistant: one HTML page
// per browser session plus a few read-only endpoints for media and state.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/yuin/goldmark"

	"github.com/basel-ax/omni/internal/artifact"
	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/log"
	"github.com/basel-ax/omni/internal/session"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "omni_session"

const defaultMaxUploadSize = 10 << 20

//go:embed templates/*.html
var templateFS embed.FS

// HistorySource lists the stored analyses of a session.
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error)
}

// Server serves the assistant page.
type Server struct {
	router    *mux.Router
	sessions  *session.Store
	artifacts *artifact.Store
	history   HistorySource
	page      *template.Template
	markdown  goldmark.Markdown

	allowedOrigins []string
	maxUploadSize  int64
}

// Option configures the Server instance.
type Option func(*Server)

// WithAllowedOrigins sets the origins accepted by the CORS middleware.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithHistory enables GET /api/history.
func WithHistory(h HistorySource) Option {
	return func(s *Server) { s.history = h }
}

// WithMaxUploadSize limits the size of an analyze form, image included.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) { s.maxUploadSize = n }
}

// New creates a server over the given session and artifact stores.
func New(sessions *session.Store, artifacts *artifact.Store, opts ...Option) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:         mux.NewRouter(),
		sessions:       sessions,
		artifacts:      artifacts,
		page:           page,
		markdown:       goldmark.New(),
		allowedOrigins: []string{"*"},
		maxUploadSize:  defaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	// Events.
	s.router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/audio", s.handleAudio).Methods(http.MethodPost)
	s.router.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	s.router.HandleFunc("/visualize", s.handleVisualize).Methods(http.MethodPost)
	s.router.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	// Media and state.
	s.router.HandleFunc("/image", s.handleImage).Methods(http.MethodGet)
	s.router.HandleFunc("/audio.mp3", s.handleAudioFile).Methods(http.MethodGet)
	s.router.HandleFunc("/artifacts/{name}", s.handleArtifact).Methods(http.MethodGet)
	s.router.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.history != nil {
		s.router.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	}
}

// ---- Handlers -----------------------------------------------------------

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.render(w, http.StatusOK, sess, "")
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Warnf("handleAnalyze: bad form for session %s: %v", sess.ID(), err)
		s.render(w, http.StatusBadRequest, sess, "The upload could not be read: "+err.Error())
		return
	}

	sess.SetCredential(r.FormValue("credential"))

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			s.render(w, http.StatusBadRequest, sess, "The image could not be read: "+err.Error())
			return
		}
		if err := sess.UploadImage(header.Filename, data); err != nil {
			s.render(w, http.StatusBadRequest, sess, err.Error())
			return
		}
	case !errors.Is(err, http.ErrMissingFile):
		s.render(w, http.StatusBadRequest, sess, "The image could not be read: "+err.Error())
		return
	}

	sess.SetDescription(r.FormValue("description"))

	fired, err := sess.Analyze(r.Context())
	s.logEvent("analyze", sess, fired, err)
	s.redirectHome(w, r)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	fired, err := sess.ConvertToAudio(r.Context())
	s.logEvent("audio", sess, fired, err)
	s.redirectHome(w, r)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	fired, err := sess.Ask(r.Context(), r.FormValue("question"))
	s.logEvent("ask", sess, fired, err)
	s.redirectHome(w, r)
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	fired, err := sess.Visualize(r.Context())
	s.logEvent("visualize", sess, fired, err)
	s.redirectHome(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	sess.Reset()
	log.Infof("Session %s reset", sess.ID())
	s.redirectHome(w, r)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img := s.session(w, r).Image()
	if img == nil {
		http.Error(w, "No image uploaded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	_, _ = w.Write(img.Data)
}

func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	audio := s.session(w, r).Audio()
	if len(audio) == 0 {
		http.Error(w, "No audio available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(audio)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, err := s.artifacts.Open(name)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			http.Error(w, "Artifact not found", http.StatusNotFound)
			return
		}
		log.Errorf("handleArtifact: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session(w, r).Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	records, err := s.history.History(r.Context(), sess.ID())
	if err != nil {
		log.Errorf("handleHistory: session %s: %v", sess.ID(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// ---- Helpers ------------------------------------------------------------

// session returns the session named by the request cookie, starting a new
// one when the cookie is missing or stale.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}

	sess := s.sessions.GetOrCreate(id)
	if sess.ID() != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		log.Debugf("Started session %s", sess.ID())
	}
	return sess
}

func (s *Server) logEvent(event string, sess *session.Session, fired bool, err error) {
	switch {
	case err != nil:
		log.Errorf("Event %s failed for session %s: %v", event, sess.ID(), err)
	case !fired:
		log.Debugf("Event %s ignored for session %s in state %s", event, sess.ID(), sess.State())
	default:
		log.Infof("Event %s done for session %s, state %s", event, sess.ID(), sess.State())
	}
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type turnView struct {
	Role domain.Role
	HTML template.HTML
}

type pageData struct {
	session.View
	SolutionHTML template.HTML
	Conversation []turnView
	Notice       string
}

func (s *Server) render(w http.ResponseWriter, status int, sess *session.Session, notice string) {
	view := sess.Snapshot()
	data := pageData{
		View:         view,
		SolutionHTML: s.renderMarkdown(view.Solution),
		Notice:       notice,
	}
	// The first two turns are the description and the solution shown above.
	if len(view.Turns) > 2 {
		for _, t := range view.Turns[2:] {
			data.Conversation = append(data.Conversation, turnView{Role: t.Role, HTML: s.renderMarkdown(t.Text)})
		}
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		log.Errorf("render: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderMarkdown converts model output to HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func (s *Server) renderMarkdown(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
