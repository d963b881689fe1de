package calls

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterCallRoutes registers the call-start route. r is expected to sit
// behind the authentication middleware.
func RegisterCallRoutes(r *mux.Router, handler *CallHandler) {
	r.HandleFunc("/api/v1/calls/token", handler.IssueToken).Methods(http.MethodPost)
}
