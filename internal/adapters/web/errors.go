package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"booking-engine/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorData(w, r, message, code, status, nil)
}

// writeErrorData writes an error carrying a data object, such as an
// availability report or a scan completion result. A nil data is omitted.
func writeErrorData(w http.ResponseWriter, r *http.Request, message, code string, status int, data any) {
	writeJSONStatus(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Data:      data,
	})
}

// writeServiceError maps an engine error onto the HTTP response. Engine errors
// keep their kind and attached data; anything else is logged and hidden
// behind a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := core.AsError(err); ok {
		writeErrorData(w, r, e.Message, string(e.Kind), e.Status(), e.Data)
		return
	}
	h.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err))
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
