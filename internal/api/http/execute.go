package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/snl"
)

// ExecuteRequest is the body of POST /v1/execute.
type ExecuteRequest struct {
	Command    string `json:"command"`
	Credential string `json:"credential,omitempty"`
}

// ExecuteResponse carries the raw SNL response.
type ExecuteResponse struct {
	Result    json.RawMessage `json:"result"`
	RequestID string          `json:"request_id,omitempty"`
}

// ExecuteHandler handles POST /v1/execute requests.
type ExecuteHandler struct {
	executor snl.Executor
	logger   *slog.Logger
}

// NewExecuteHandler creates a handler running commands on exec.
func NewExecuteHandler(exec snl.Executor, logger *slog.Logger) *ExecuteHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecuteHandler{executor: exec, logger: logger}
}

// ServeHTTP handles the execute HTTP request.
func (h *ExecuteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err),
			string(engine.CodeBadCommand), requestID)
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required", string(engine.CodeBadCommand), requestID)
		return
	}

	result, err := h.executor.Execute(r.Context(), req.Command, req.Credential)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("execute failed", "error", err, "request_id", requestID)
		}
		writeError(w, status, err.Error(), code, requestID)
		return
	}

	if len(result) == 0 {
		result = snl.Response("null")
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Result:    json.RawMessage(result),
		RequestID: requestID,
	})
}

// statusFor maps an executor error to an HTTP status and an engine code.
func statusFor(err error) (int, string) {
	switch engine.CodeOf(err) {
	case engine.CodeUnauthorized:
		return http.StatusUnauthorized, string(engine.CodeUnauthorized)
	case engine.CodeBadCommand:
		return http.StatusBadRequest, string(engine.CodeBadCommand)
	case engine.CodeNotFound:
		return http.StatusNotFound, string(engine.CodeNotFound)
	}
	if errors.Is(err, snl.ErrNotFound) {
		return http.StatusNotFound, string(engine.CodeNotFound)
	}
	return http.StatusInternalServerError, string(engine.CodeInternal)
}

// HealthHandler answers GET /healthz.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewHandler returns the routed and wrapped HTTP handler for exec.
func NewHandler(exec snl.Executor, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	mux.Handle("/v1/execute", NewExecuteHandler(exec, logger))
	mux.HandleFunc("/healthz", HealthHandler)
	return DefaultMiddleware(logger)(mux)
}
