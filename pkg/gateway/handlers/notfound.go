package handlers

import (
	"net/http"

	"github.com/voxlink/livebridge/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeErrorJSON(w, http.StatusNotFound, &apiError{
		Type:      "not_found",
		Message:   "not found",
		RequestID: reqID,
	})
}
