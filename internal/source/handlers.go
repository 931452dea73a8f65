package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent_office/internal/domain"
	"agent_office/internal/simagent"
)

// Handler exposes the service over HTTP: the pull snapshot, the websocket
// push stream, and per-agent control endpoints.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.Handle("/api/events", s.hub)
	mux.HandleFunc("/api/agents/", s.handleAgentAction)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activity": s.Activity(),
	})
}

func (s *Service) handleAgentAction(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("agent id and action are required"))
		return
	}
	agentID, action := parts[0], parts[1]

	if action == "session" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		msgs, err := s.history.ListTranscript(r.Context(), agentID, 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"agent":    agentID,
			"messages": msgs,
		})
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var err error
	switch action {
	case "pause":
		err = s.control.Pause(agentID)
	case "resume":
		err = s.control.Resume(agentID)
	case "kill":
		err = s.control.Kill(agentID)
	case "message":
		err = s.deliverMessage(r, agentID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", action))
		return
	}
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, simagent.ErrUnknownAgent) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": action,
		"agent":  agentID,
	})
}

func (s *Service) deliverMessage(r *http.Request, agentID string) error {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	if strings.TrimSpace(req.Body) == "" {
		return fmt.Errorf("body is required")
	}
	msg := domain.TranscriptMessage{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Author:    "user",
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.control.Deliver(agentID, msg); err != nil {
		return err
	}
	if err := s.history.AppendTranscript(r.Context(), msg); err != nil {
		s.logger.Printf("append transcript failed: %v", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
