package calls

import (
	"net/http"
	"time"

	"github.com/Vasu1712/scenyx-connect/internal/api"
	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/auth"
	"github.com/Vasu1712/scenyx-connect/internal/calls"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
)

type CallHandler struct {
	Issuer *calls.Issuer
	Log    *logger.Logger
}

type tokenRequest struct {
	ConversationID string `json:"conversationId"`
	RoomName       string `json:"roomName,omitempty"`
	Identity       string `json:"identity,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"roomName"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken mints a video credential for a conversation the caller
// participates in. Failures are 401 when the caller must authenticate
// again and 400 otherwise.
func (h *CallHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.fail(w, apperr.Unauthenticated("missing bearer token"))
		return
	}

	var req tokenRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	// Clients that only kept the room can still ask for a token for it.
	if req.ConversationID == "" {
		if id, ok := pairing.ConversationFromRoom(req.RoomName); ok {
			req.ConversationID = id
		}
	}

	cred, err := h.Issuer.Issue(r.Context(), calls.IssueRequest{
		ConversationID: req.ConversationID,
		CallerID:       id.UserID,
		RoomName:       req.RoomName,
		Identity:       req.Identity,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:     cred.Token,
		RoomName:  cred.RoomName,
		Identity:  cred.Identity,
		ExpiresAt: cred.ExpiresAt,
	})
}

func (h *CallHandler) fail(w http.ResponseWriter, err error) {
	api.WriteError(w, h.Log, err, apperr.CallStatus)
}
