package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-agentdb/pkg/engine"
	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
	"go-agentdb/pkg/store"
)

// Server holds the dependencies agentd's HTTP handlers share.
type Server struct {
	client   *store.Client
	registry *engine.Registry
	llm      engine.LLMClient
	logger   *slog.Logger
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Message string `json:"message"`
}

type createSessionResponse struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threadID, err := engine.StartSession(r.Context(), s.client, req.Message)
	if err != nil {
		s.logger.Error("start_session failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.advance(r.Context(), threadID); err != nil {
		s.logger.Error("process_thread failed", "thread_id", threadID, "error", err)
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{ThreadID: threadID})
}

// handleSession dispatches /sessions/{id}, /sessions/{id}/messages and
// /sessions/{id}/terminate.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(path, "/", 2)
	threadID := parts[0]
	if threadID == "" {
		writeError(w, http.StatusNotFound, "thread id required")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetState(w, r, threadID)
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		s.handlePostMessage(w, r, threadID)
	case len(parts) == 2 && parts[1] == "terminate" && r.Method == http.MethodPost:
		s.handleTerminate(w, r, threadID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) streamName(threadID string) (string, error) {
	return store.BuildStreamName(store.DefaultCategory, store.DefaultVersion, threadID)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request, threadID string) {
	streamName, err := s.streamName(threadID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evts, err := s.client.ReadStream(r.Context(), streamName, store.ReadOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projections.State(evts))
}

type postMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, threadID string) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	streamName, err := s.streamName(threadID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := userMessageJSON(req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.client.Append(r.Context(), streamName, "UserMessageAdded", data, nil, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.advance(r.Context(), threadID); err != nil {
		s.logger.Error("process_thread failed", "thread_id", threadID, "error", err)
	}

	s.handleGetState(w, r, threadID)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request, threadID string) {
	streamName, err := s.streamName(threadID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := engine.TerminateSession(r.Context(), s.client, streamName, "requested_by_caller"); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.advance(r.Context(), threadID); err != nil {
		s.logger.Error("process_thread failed", "thread_id", threadID, "error", err)
	}
	s.handleGetState(w, r, threadID)
}

// advance runs the processing loop for threadID to completion or until
// it's waiting on another user message.
func (s *Server) advance(ctx context.Context, threadID string) error {
	streamName, err := s.streamName(threadID)
	if err != nil {
		return err
	}
	_, err = engine.ProcessThread(ctx, s.client, streamName, s.llm, s.registry, engine.Options{
		Logger: s.logger,
	})
	if err != nil {
		if _, ok := err.(*engine.MaxIterationsExceededError); ok {
			return nil
		}
	}
	return err
}

func userMessageJSON(message string) ([]byte, error) {
	return json.Marshal(events.UserMessageAdded{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
