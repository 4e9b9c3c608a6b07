package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fleetgate/agentctl/internal/admission"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// detailResponse is the external error envelope: {"detail": "..."}.
type detailResponse struct {
	Detail string `json:"detail"`
}

// RespondDetail writes a JSON error response in the {"detail": ...} shape.
func RespondDetail(w http.ResponseWriter, status int, detail string) {
	Respond(w, status, detailResponse{Detail: detail})
}

var kindStatus = map[admission.Kind]int{
	admission.KindInvalidInput:          http.StatusBadRequest,
	admission.KindUnauthenticated:       http.StatusUnauthorized,
	admission.KindForbidden:             http.StatusForbidden,
	admission.KindNotFound:              http.StatusNotFound,
	admission.KindConflict:              http.StatusConflict,
	admission.KindRateLimited:           http.StatusTooManyRequests,
	admission.KindDependencyUnavailable: http.StatusServiceUnavailable,
	admission.KindMisconfigured:         http.StatusInternalServerError,
}

// RespondError maps an admission.Error to its HTTP status and writes the
// {"detail": ...} envelope. Any other error is treated as an opaque
// internal failure.
func RespondError(w http.ResponseWriter, err error) {
	var admErr *admission.Error
	if errors.As(err, &admErr) {
		status, ok := kindStatus[admErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		RespondDetail(w, status, admErr.Message)
		return
	}
	RespondDetail(w, http.StatusInternalServerError, "internal error")
}
