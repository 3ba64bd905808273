// Package api provides HTTP handlers for FocusPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// GrantRequest is the body of POST /subscriptions.
type GrantRequest struct {
	ParticipantID string          `json:"participant_id"`
	Tier          models.TierCode `json:"tier"`
	Days          int             `json:"days"`
}

// SessionView is the body of GET /participants/{id}/session.
type SessionView struct {
	Session *models.Session   `json:"session"`
	Timers  []models.Callback `json:"timers"`
}

// healthzHandler reports liveness (GET /healthz).
func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{
		"transport": s.transport,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}))
}

// grantHandler applies a paid tier grant (POST /subscriptions).
func (s *Server) grantHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.grantHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	pid, err := s.canonicalize(req.ParticipantID)
	if err != nil {
		slog.Warn("Server.grantHandler: participant validation failed", "error", err, "participant_id", req.ParticipantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sub, err := s.granter.GrantTier(pid, req.Tier, req.Days)
	switch {
	case errors.Is(err, models.ErrUnknownTier), errors.Is(err, models.ErrInvalidGrantDays):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.grantHandler: grant failed", "error", err, "participantID", pid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save grant"))
		return
	}

	slog.Info("Server.grantHandler: tier granted", "participantID", pid, "tier", sub.Tier, "expiresAt", sub.ExpiresAt, "caller", callerSubject(r.Context()))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Tier granted", sub))
}

// sessionHandler returns the live session and armed timers of a participant
// (GET /participants/{id}/session).
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	pid, ok := s.participantFromPath(w, r)
	if !ok {
		return
	}
	sess, err := s.inspector.Session(pid)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "participantID", pid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(SessionView{Session: sess, Timers: s.timers.Armed(pid)}))
}

// statsHandler returns today's counts for a participant
// (GET /participants/{id}/stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	pid, ok := s.participantFromPath(w, r)
	if !ok {
		return
	}
	stats, err := s.inspector.Stats(pid)
	if err != nil {
		slog.Error("Server.statsHandler: failed to count events", "error", err, "participantID", pid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// timersHandler lists every armed follow-up (GET /timers).
func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	timers := s.timers.ListActive()
	slog.Debug("Server.timersHandler: listing timers", "count", len(timers))
	writeJSONResponse(w, http.StatusOK, models.Success(timers))
}

func (s *Server) participantFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	if raw == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing participant ID"))
		return "", false
	}
	pid, err := s.canonicalize(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", false
	}
	return pid, true
}
