// Package api webhook and playback handlers.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// inboundHandler answers the gateway's new-call webhook: validate, open the
// session, route it to an agent, and reply with the opening TwiML.
func (s *Server) inboundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.inboundHandler: processing inbound call webhook", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.inboundHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateSignature(r) {
		slog.Warn("Server.inboundHandler: signature validation failed", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid webhook signature"))
		return
	}

	event := parseCallStarted(r)
	out, err := s.coord.HandleCallStarted(r.Context(), event)
	if err != nil {
		slog.Warn("Server.inboundHandler: call start rejected", "error", err, "callID", event.CallID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.inboundHandler: call answered", "callID", event.CallID, "caller", event.CallerAddress)
	s.writeTurnTwiML(w, out)
}

// processHandler answers the gateway's speech-result webhook: run the turn
// pipeline and reply with the next TwiML.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.processHandler: processing utterance webhook", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.processHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateSignature(r) {
		slog.Warn("Server.processHandler: signature validation failed", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid webhook signature"))
		return
	}

	event := parseUtterance(r)
	if event.CallID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyCallID.Error()))
		return
	}
	// An empty transcription means recognition produced nothing usable. The
	// turn is terminal but the call survives: ask the caller to repeat.
	if strings.TrimSpace(event.Text) == "" {
		slog.Info("Server.processHandler: empty transcription, asking caller to repeat", "callID", event.CallID)
		if doc, err := s.clarifyTwiML(); err == nil {
			writeTwiMLResponse(w, doc)
		} else {
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to render reply"))
		}
		return
	}

	out, err := s.coord.HandleUtterance(r.Context(), event)
	switch {
	case err == nil:
		s.writeTurnTwiML(w, out)
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrSessionEnded):
		slog.Warn("Server.processHandler: utterance for unknown session", "callID", event.CallID)
		doc, _ := hangupTwiML("I'm sorry, this call is no longer active. Goodbye.")
		writeTwiMLResponse(w, doc)
	case errors.Is(err, models.ErrTurnAborted):
		slog.Info("Server.processHandler: turn ceiling reached, ending call", "callID", event.CallID)
		doc, _ := hangupTwiML("Thanks so much for calling. Goodbye.")
		writeTwiMLResponse(w, doc)
	default:
		slog.Error("Server.processHandler: turn failed", "error", err, "callID", event.CallID)
		doc, _ := hangupTwiML("I'm sorry, something went wrong on our end. Please call back.")
		writeTwiMLResponse(w, doc)
	}
}

// statusHandler answers the gateway's call-status callback. Terminal
// statuses tear the session down; intermediate ones are acknowledged.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.statusHandler: processing status callback", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.statusHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateSignature(r) {
		slog.Warn("Server.statusHandler: signature validation failed", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid webhook signature"))
		return
	}

	event := parseCallEnded(r)
	if event == nil {
		slog.Debug("Server.statusHandler: non-terminal status ignored", "status", r.PostForm.Get("CallStatus"))
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	err := s.coord.HandleCallEnded(r.Context(), event)
	switch {
	case err == nil:
		slog.Info("Server.statusHandler: call ended", "callID", event.CallID, "reason", event.Reason)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Call ended", nil))
	case errors.Is(err, models.ErrSessionNotFound):
		// Status callbacks are retried by the gateway; a second delivery for
		// an already-closed call is normal.
		slog.Debug("Server.statusHandler: session already closed", "callID", event.CallID)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
	default:
		slog.Error("Server.statusHandler: failed to end call", "error", err, "callID", event.CallID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	}
}

// audioHandler streams a rendered clip to the gateway for playback.
func (s *Server) audioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/audio/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Audio not found"))
		return
	}

	audio, err := s.coord.GetAudio(id)
	if err != nil {
		slog.Warn("Server.audioHandler: clip not found", "id", id)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Audio not found"))
		return
	}

	// 8 kHz mono mu-law, the telephony native encoding.
	w.Header().Set("Content-Type", "audio/basic")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		slog.Error("Server.audioHandler: failed to write audio", "error", err, "id", id)
	}
}

// healthHandler reports liveness and the number of active sessions.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":          "healthy",
		"active_sessions": s.coord.Registry().Count(),
	}))
}
