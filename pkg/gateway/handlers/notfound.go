package handlers

import (
	"net/http"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusNotFound, errorEnvelope{Error: &core.Error{
		Type:      core.ErrInvalidRequest,
		Message:   "not found",
		RequestID: reqID,
	}})
}
