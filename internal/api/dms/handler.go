package dms

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-connect/internal/access"
	"github.com/Vasu1712/scenyx-connect/internal/api"
	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/auth"
	"github.com/Vasu1712/scenyx-connect/internal/conversation"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
	"github.com/Vasu1712/scenyx-connect/internal/ws"
)

const maxContentLength = 4000

type DMHandler struct {
	Resolver *conversation.Resolver
	Access   *access.Checker
	Messages storage.MessageStore
	Hub      *ws.Hub
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	// AllowedOrigin is the browser origin permitted to open websockets.
	// Empty allows any origin.
	AllowedOrigin string
}

type startRequest struct {
	UniverseA string `json:"universeA"`
	UniverseB string `json:"universeB"`
}

type startResponse struct {
	ConversationID string `json:"conversationId"`
	RoomName       string `json:"roomName"`
	Created        bool   `json:"created"`
}

// StartOrGetConversation resolves the conversation between two known
// universes, one of which the caller must own.
func (h *DMHandler) StartOrGetConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req startRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if _, err := pairing.Canonicalize(req.UniverseA, req.UniverseB); err != nil {
		h.fail(w, err)
		return
	}
	if _, err := h.Access.OwnedOneOf(r.Context(), id.UserID, req.UniverseA, req.UniverseB); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), req.UniverseA, req.UniverseB, id.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	api.WriteJSON(w, status, startResponse{
		ConversationID: res.ConversationID,
		RoomName:       res.RoomName(),
		Created:        res.Created,
	})
}

type sendRequest struct {
	ConversationID      string `json:"conversationId"`
	SenderUniverseID    string `json:"senderUniverseId"`
	RecipientUniverseID string `json:"recipientUniverseId"`
	Content             string `json:"content"`
}

// SendMessage stores a message in the sender's name and broadcasts it to
// the conversation's subscribers. Without a conversation id the
// conversation with the recipient is resolved first.
func (h *DMHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := auth.IdentityFrom(ctx)

	var req sendRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.fail(w, apperr.InvalidInput("content is required"))
		return
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		h.fail(w, apperr.InvalidInput("content is too long"))
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		if req.RecipientUniverseID == "" {
			h.fail(w, apperr.InvalidInput("conversationId or recipientUniverseId is required"))
			return
		}
		if _, err := h.Access.Owns(ctx, req.SenderUniverseID, id.UserID); err != nil {
			h.fail(w, err)
			return
		}
		if err := h.Access.Exists(ctx, req.RecipientUniverseID); err != nil {
			h.fail(w, err)
			return
		}
		res, err := h.Resolver.Resolve(ctx, req.SenderUniverseID, req.RecipientUniverseID, id.UserID)
		if err != nil {
			h.fail(w, err)
			return
		}
		conversationID = res.ConversationID
	} else if _, err := h.Access.AuthorizeAs(ctx, conversationID, req.SenderUniverseID, id.UserID); err != nil {
		h.fail(w, err)
		return
	}

	msg, err := h.Messages.AddMessage(ctx, &models.DMMessage{
		ConversationID:   conversationID,
		SenderUniverseID: req.SenderUniverseID,
		Content:          content,
	})
	if errors.Is(err, storage.ErrNotFound) {
		h.fail(w, access.ErrNotParticipant)
		return
	}
	if err != nil {
		h.fail(w, apperr.Upstream("message insert failed", err))
		return
	}
	h.Metrics.MessagesSentTotal.Inc()

	if data, err := json.Marshal(msg); err != nil {
		h.Log.Error().Err(err).Str("message_id", msg.ID).Msg("encode broadcast")
	} else if err := h.Hub.Publish(ctx, conversationID, data); err != nil {
		h.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("broadcast skipped")
	}
	api.WriteJSON(w, http.StatusCreated, msg)
}

// ServeWS subscribes an authorized participant to a conversation's
// message stream.
func (h *DMHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	conversationID := r.URL.Query().Get("conversation_id")

	membership, err := h.Access.Authorize(r.Context(), conversationID, id.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.Hub.Serve(ws.NewClient(conn, conversationID, membership.Universe.ID, id.UserID))
}

func (h *DMHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if h.AllowedOrigin == "" || origin == "" {
		return true
	}
	if origin == h.AllowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h *DMHandler) fail(w http.ResponseWriter, err error) {
	api.WriteError(w, h.Log, err, apperr.HTTPStatus)
}
