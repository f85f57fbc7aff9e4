// Package server exposes the HTTP surface: chat and action endpoints,
// health, metrics, and the websocket hub that patches flow through.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomhq/loom/internal/actions"
	"github.com/loomhq/loom/internal/chat"
	"github.com/loomhq/loom/internal/hostcheck"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/plan"
	"github.com/loomhq/loom/internal/tools"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxRequestBytes   = 1 << 20
)

// ChatHandler runs one conversation turn.
type ChatHandler interface {
	Handle(ctx context.Context, req chat.Request) (chat.Response, error)
}

// ActionHandler runs one routed action.
type ActionHandler interface {
	Handle(ctx context.Context, action actions.Action) (actions.Result, error)
}

// Server is the HTTP front of the orchestration core.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	chats      ChatHandler
	acts       ActionHandler
	logger     *slog.Logger
}

// New builds the server and its routes.
func New(addr string, chats ChatHandler, acts ActionHandler, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, chats: chats, acts: acts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/action", s.handleAction)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws", hub)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "conversationId is required")
		return
	}

	ctx := requestContext(r)
	resp, err := s.chats.Handle(ctx, req)
	if err != nil {
		s.logger.Error("chat turn failed", "conversation_id", req.ConversationID, "error", err)
		writeError(w, statusFor(err), codeFor(err), "the turn could not be completed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action actions.Action
	if err := decodeJSON(w, r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if action.Schema != "" && action.Schema != actions.SchemaActionV1 {
		writeError(w, http.StatusBadRequest, "bad_request", "unsupported action schema")
		return
	}
	if action.Type == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "action type is required")
		return
	}

	ctx := requestContext(r)
	res, err := s.acts.Handle(ctx, action)
	if err != nil {
		s.logger.Error("action failed", "action_type", action.Type, "error", err)
		writeError(w, statusFor(err), codeFor(err), "the action could not be completed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestContext lifts the correlation headers into the request context so
// every downstream call and log line carries them.
func requestContext(r *http.Request) context.Context {
	return observability.WithRequestContext(r.Context(), observability.RequestContext{
		CorrelationID:  r.Header.Get("X-Correlation-Id"),
		UserID:         r.Header.Get("X-User-Id"),
		ConversationID: r.Header.Get("X-Conversation-Id"),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrToolNotFound),
		errors.Is(err, tools.ErrMissingArgument),
		errors.Is(err, plan.ErrInvalidPlan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, hostcheck.ErrHostNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, actions.ErrNoRoute):
		return "no_route"
	case errors.Is(err, tools.ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, tools.ErrMissingArgument):
		return "missing_argument"
	case errors.Is(err, plan.ErrInvalidPlan):
		return "invalid_plan"
	case errors.Is(err, hostcheck.ErrHostNotAllowed):
		return "host_not_allowed"
	default:
		return "upstream_failure"
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
