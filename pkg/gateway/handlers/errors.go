package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lurelab/lure/pkg/core"
)

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

// statusFor maps the engagement error taxonomy onto HTTP. Capacity
// refusals are 429 so well-behaved callers back off and retry.
func statusFor(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrRateLimit, core.ErrOverloaded, core.ErrSessionBusy:
		return http.StatusTooManyRequests
	case core.ErrTimeout:
		return http.StatusGatewayTimeout
	case core.ErrStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, reqID string, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		coreErr = core.NewAPIError("internal error")
	}
	if coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}

	status := statusFor(coreErr.Type)
	if status == http.StatusTooManyRequests {
		retryAfter := 1
		if coreErr.RetryAfter != nil && *coreErr.RetryAfter > 0 {
			retryAfter = *coreErr.RetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, status, errorEnvelope{Error: coreErr})
}

func writeMethodNotAllowed(w http.ResponseWriter, reqID, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: &core.Error{
		Type:      core.ErrInvalidRequest,
		Message:   "method not allowed",
		RequestID: reqID,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
