// Package api exposes the assistant over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agendia/assistant/internal/pipeline"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AskService answers questions. Satisfied by *pipeline.Service.
type AskService interface {
	Ask(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// SessionResetter clears one session's conversation memory. Satisfied by
// *memory.Store.
type SessionResetter interface {
	Clear(ctx context.Context, sessionID string) error
}

// CacheInvalidator drops cached answers that mention a module. Satisfied by
// *cache.Store.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, moduleID string) (int, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Ask      AskService
	Sessions SessionResetter
	Cache    CacheInvalidator
}

// NewHandler returns the assistant's REST API. When authToken is non-empty
// every route except /health requires a matching bearer token.
func NewHandler(deps Deps, authToken string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if authToken != "" {
			r.Use(BearerAuth(authToken))
		}
		r.Post("/v1/ask", handleAsk(deps.Ask))
		r.Post("/v1/sessions/{sessionID}/reset", handleSessionReset(deps.Sessions))
		r.Post("/v1/cache/invalidate", handleCacheInvalidate(deps.Cache))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleAsk(svc AskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sessionId is required")
			return
		}

		resp, err := svc.Ask(r.Context(), req)
		if err != nil {
			writePipelineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleSessionReset(sessions SessionResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session id is required")
			return
		}

		if err := sessions.Clear(r.Context(), sessionID); err != nil {
			slog.Error("session reset failed", "session", sessionID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset session")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func handleCacheInvalidate(invalidator CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Module string `json:"module"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Module == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "module is required")
			return
		}

		removed, err := invalidator.Invalidate(r.Context(), req.Module)
		if err != nil {
			slog.Error("cache invalidation failed", "module", req.Module, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to invalidate cache")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"removed": removed,
		})
	}
}

// writePipelineError maps a pipeline failure to an HTTP status and the
// user-facing Spanish message. The wrapped cause stays in the logs.
func writePipelineError(w http.ResponseWriter, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		slog.Error("ask failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch pe.Kind {
	case pipeline.KindEmptyQuestion, pipeline.KindQuestionTooLong:
		status = http.StatusBadRequest
	case pipeline.KindRateLimited:
		status = http.StatusTooManyRequests
	case pipeline.KindEmbeddingFailed, pipeline.KindModelFailed:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		slog.Error("ask failed", "kind", pe.Kind, "error", err)
	} else {
		slog.Debug("ask rejected", "kind", pe.Kind)
	}
	httpError(w, status, string(pe.Kind), "%s", pe.Message)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
