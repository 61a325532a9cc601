// Package api admin endpoints for sessions, agents, and archived calls.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// apiKeyHeader carries the admin credential.
const apiKeyHeader = "X-API-Key"

// defaultCallListLimit caps the archived-call listing when the client does
// not ask for a specific page size.
const defaultCallListLimit = 50

// requireAPIKey guards an admin handler with a constant-time key compare.
// With no key configured the admin API is open, which is only sensible for
// local development.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			provided := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
				slog.Warn("Server.requireAPIKey: rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid API key"))
				return
			}
		}
		next(w, r)
	}
}

// sessionsHandler lists the live sessions.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	infos := s.coord.Registry().List()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"count":    len(infos),
		"sessions": infos,
	}))
}

// sessionHandler returns one live session by call id.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	callID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if callID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyCallID.Error()))
		return
	}
	info, err := s.coord.Registry().Get(callID)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrSessionNotFound.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(info))
}

// agentsHandler lists agent configurations or registers a new one.
func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		agents, err := s.store.ListAgents()
		if err != nil {
			slog.Error("Server.agentsHandler: failed to list agents", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list agents"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(agents))
	case http.MethodPost:
		var agent models.AgentConfig
		if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
			slog.Warn("Server.agentsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := agent.Validate(); err != nil {
			slog.Warn("Server.agentsHandler: agent validation failed", "error", err, "agentID", agent.ID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.store.SaveAgent(agent); err != nil {
			slog.Error("Server.agentsHandler: failed to save agent", "error", err, "agentID", agent.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save agent"))
			return
		}
		// New calls route against the refreshed set; live calls keep the
		// agent they were routed to.
		if err := s.coord.LoadAgents(); err != nil {
			slog.Error("Server.agentsHandler: failed to reload agents", "error", err)
		}
		slog.Info("Server.agentsHandler: agent saved", "agentID", agent.ID)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Agent saved", agent))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// callsHandler lists archived call records, most recent first.
func (s *Server) callsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := defaultCallListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = parsed
	}
	records, err := s.store.ListCallRecords(limit)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusOK, models.Success([]models.CallSession{}))
			return
		}
		slog.Error("Server.callsHandler: failed to list call records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list call records"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
