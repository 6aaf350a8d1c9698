package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/justice-council/internal/app/agentflow"
	"github.com/PabloGalante/justice-council/internal/app/conversation"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/observability"
)

type Server struct {
	svc *conversation.Service
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{svc: svc}
	r := chi.NewRouter()

	r.Use(withMetrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/turns", s.handleTimeline)
			r.Post("/messages", s.handleSendMessage)
			r.Delete("/", s.handleEndSession)
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
		r.Post("/", s.handleRegisterAgent)
		r.Put("/{name}/active", s.handleSetActive)
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type turnResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type timelineResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []turnResponse `json:"turns"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type entryResponse struct {
	Speaker  string `json:"speaker"`
	Content  string `json:"content"`
	Degraded bool   `json:"degraded,omitempty"`
}

type sendMessageResponse struct {
	SessionID  string          `json:"session_id"`
	Notice     string          `json:"notice,omitempty"`
	Transcript []entryResponse `json:"transcript"`
}

type agentResponse struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
	Active bool   `json:"active"`
}

type advocateRequest struct {
	Framework  string `json:"framework"`
	Definition string `json:"definition"`
	Values     string `json:"values"`
	Tone       string `json:"tone"`
}

type registerAgentRequest struct {
	Name        string           `json:"name"`
	Instruction string           `json:"instruction,omitempty"`
	Custom      bool             `json:"custom"`
	Advocate    *advocateRequest `json:"advocate,omitempty"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type noticeResponse struct {
	Notice string `json:"notice"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: string(s.svc.NewSession())})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))

	window := s.svc.Window()
	if raw := r.URL.Query().Get("window_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "window_minutes must be an integer")
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	turns, err := s.svc.Timeline(r.Context(), id, window)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := timelineResponse{SessionID: string(id), Turns: make([]turnResponse, 0, len(turns))}
	for _, t := range turns {
		resp.Turns = append(resp.Turns, toTurnResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.Submit(r.Context(), conversation.SubmitInput{
		SessionID: domain.SessionID(chi.URLParam(r, "id")),
		Text:      req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		SessionID:  string(out.SessionID),
		Notice:     out.Notice,
		Transcript: toEntriesResponse(out.Transcript),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), domain.SessionID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.svc.Agents()
	resp := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		resp = append(resp, agentResponse{Key: a.Key, Name: a.Name, Custom: a.Custom, Active: a.Active})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := conversation.RegisterInput{
		Name:        req.Name,
		Instruction: req.Instruction,
		Custom:      req.Custom,
	}
	if req.Advocate != nil {
		in.Advocate = &persona.Advocate{
			Framework:  req.Advocate.Framework,
			Definition: req.Advocate.Definition,
			Values:     req.Advocate.Values,
			Tone:       req.Advocate.Tone,
		}
	}

	ag, err := s.svc.RegisterPersona(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p := ag.Persona()
	writeJSON(w, http.StatusCreated, agentResponse{Key: p.Key, Name: p.Name, Custom: p.Custom, Active: true})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		badRequest(w, "body must be {\"active\": true|false}")
		return
	}

	notice, err := s.svc.SetActive(chi.URLParam(r, "name"), *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toTurnResponse(t *domain.Turn) turnResponse {
	return turnResponse{
		ID:        string(t.ID),
		SessionID: string(t.SessionID),
		Speaker:   t.Speaker,
		Role:      string(t.Role),
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
	}
}

func toEntriesResponse(entries []agentflow.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{Speaker: e.Speaker, Content: e.Content, Degraded: e.Degraded})
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, domain.ErrInvalidPersona),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrEmptySession),
		errors.Is(err, domain.ErrEmptySpeaker),
		errors.Is(err, domain.ErrInvalidRole):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnknownAgent):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicatePersona):
		status, msg = http.StatusConflict, err.Error()
	case domain.IsStorageFault(err):
		status, msg = http.StatusServiceUnavailable, "storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
