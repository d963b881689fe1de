package dms

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterDMRoutes registers the DM HTTP and WebSocket routes. r is
// expected to sit behind the authentication middleware.
func RegisterDMRoutes(r *mux.Router, handler *DMHandler) {
	r.HandleFunc("/api/v1/dms/start", handler.StartOrGetConversation).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/dms/send", handler.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/ws/dms", handler.ServeWS).Methods(http.MethodGet)
}
