// Package server provides the FlowStudio HTTP API server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/github"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
)

// webhookTurnTimeout bounds a copilot turn started from a GitHub comment.
const webhookTurnTimeout = 5 * time.Minute

// Server is the FlowStudio HTTP API server.
type Server struct {
	addr          string
	svc           *studio.Service
	log           *zap.Logger
	router        chi.Router
	webhookSecret string

	// webhooks tracks comment turns still running in the background.
	webhooks sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithWebhookSecret enables POST /api/webhooks/github, verifying deliveries
// with secret.
func WithWebhookSecret(secret string) Option {
	return func(s *Server) { s.webhookSecret = secret }
}

// New creates a new Server on top of the studio service.
func New(addr string, svc *studio.Service, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr: addr,
		svc:  svc,
		log:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.webhooks.Wait()
	}()

	s.log.Info("FlowStudio server listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/automations", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))
			r.Post("/", s.handleCreateAutomation)
			r.Get("/", s.handleListAutomations)
			r.Get("/{id}", s.handleGetAutomation)
			r.Get("/{id}/blueprint", s.handleGetBlueprint)
			r.Get("/{id}/messages", s.handleListMessages)
			r.Post("/{id}/messages", s.handleSendMessage)
			r.Post("/{id}/status", s.handleSetStatus)
			r.Post("/{id}/handoff", s.handleHandoff)
		})
		// SSE streams are long-lived and stay outside the timeout group.
		r.Get("/{id}/events", s.handleEvents)
	})

	r.Post("/api/webhooks/github", s.handleGitHubWebhook)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// --- Request/Response types ---

type createAutomationRequest struct {
	Name string `json:"name"`
}

type createAutomationResponse struct {
	ID string `json:"id"`
}

type blueprintResponse struct {
	Version   int                  `json:"version"`
	Blueprint *blueprint.Blueprint `json:"blueprint"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type setStatusRequest struct {
	Status blueprint.Status `json:"status"`
}

type handoffRequest struct {
	Repo string `json:"repo"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var req createAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := s.svc.CreateAutomation(r.Context(), req.Name)
	if err != nil {
		s.internalError(w, "failed to create automation", err)
		return
	}
	writeJSON(w, http.StatusCreated, createAutomationResponse{ID: a.ID})
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := s.svc.Store().ListAutomations()
	if err != nil {
		s.internalError(w, "failed to list automations", err)
		return
	}
	if automations == nil {
		automations = []*store.Automation{}
	}
	writeJSON(w, http.StatusOK, automations)
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Store().GetAutomation(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	bp, version, err := s.svc.Store().GetBlueprint(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blueprintResponse{Version: version, Blueprint: bp})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.Store().GetAutomation(id); err != nil {
		s.storeError(w, err)
		return
	}
	msgs, err := s.svc.Store().GetMessages(id)
	if err != nil {
		s.internalError(w, "failed to list messages", err)
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := s.svc.Converse(r.Context(), chi.URLParam(r, "id"), req.Content)
	var transport *copilot.TransportError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, turn)
	case errors.Is(err, studio.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "content is required")
	case errors.As(err, &transport):
		s.log.Warn("copilot unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "copilot is unavailable, try again")
	default:
		s.storeError(w, err)
	}
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bp, version, err := s.svc.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, blueprintResponse{Version: version, Blueprint: bp})
	case errors.Is(err, studio.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.storeError(w, err)
	}
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Repo == "" {
		writeError(w, http.StatusBadRequest, "repo is required")
		return
	}

	res, err := s.svc.Handoff(r.Context(), chi.URLParam(r, "id"), req.Repo)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, studio.ErrHandoffDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, studio.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "automation not found")
	default:
		s.log.Warn("handoff failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to create handoff issue")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.svc.Store().GetAutomation(id); err != nil {
		s.storeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replaying history so nothing falls in between.
	types := eventTypesParam(r)
	bus := s.svc.Bus()
	sub := bus.Subscribe(id, types...)
	defer func() {
		bus.Unsubscribe(sub)
		if n := sub.Dropped(); n > 0 {
			s.log.Warn("sse subscriber fell behind", zap.String("automation", id), zap.Int64("dropped", n))
		}
	}()

	events, err := s.svc.Store().GetEvents(id, 0)
	if err != nil {
		s.log.Error("loading events", zap.String("automation", id), zap.Error(err))
	}
	var lastID int64
	for _, e := range events {
		lastID = e.ID
		if sub.Wants(e.Type) {
			writeSSE(w, e)
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if event.ID <= lastID {
				continue
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" || !s.svc.HandoffEnabled() {
		writeError(w, http.StatusNotFound, "github webhooks are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	event, err := github.ParseWebhook(r, s.webhookSecret)
	if err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	s.webhooks.Add(1)
	go func() {
		defer s.webhooks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), webhookTurnTimeout)
		defer cancel()

		if _, err := s.svc.HandleIssueComment(ctx, event); err != nil {
			level := zap.WarnLevel
			if errors.Is(err, studio.ErrUnknownIssue) {
				level = zap.DebugLevel
			}
			s.log.Log(level, "issue comment not processed",
				zap.String("repo", event.Repo),
				zap.Int("issue", event.IssueNumber),
				zap.Error(err))
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

// eventTypesParam reads the optional comma-separated ?types= filter.
func eventTypesParam(r *http.Request) []store.EventType {
	var types []store.EventType
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, store.EventType(t))
		}
	}
	return types
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "automation not found")
		return
	}
	s.internalError(w, "internal error", err)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *store.Event) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data))
}
