package dms

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-connect/internal/access"
	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/auth"
	"github.com/Vasu1712/scenyx-connect/internal/conversation"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage/memory"
	"github.com/Vasu1712/scenyx-connect/internal/ws"
)

// bearerIsUser treats the bearer token itself as the user id.
var bearerIsUser = auth.VerifierFunc(func(_ context.Context, bearer string) (auth.Identity, error) {
	if bearer == "" {
		return auth.Identity{}, apperr.Unauthenticated("missing bearer token")
	}
	return auth.Identity{UserID: bearer}, nil
})

type testEnv struct {
	router  *mux.Router
	store   *memory.DMStore
	hub     *ws.Hub
	metrics *metrics.Metrics
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewDMStore(
		models.Universe{ID: "u-alpha", OwnerID: "alice", Active: true},
		models.Universe{ID: "u-beta", OwnerID: "bob", Active: true},
		models.Universe{ID: "u-gamma", OwnerID: "carol", Active: true},
	)
	log := logger.Nop()
	m := metrics.New()
	hub := ws.NewHub(log, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	handler := &DMHandler{
		Resolver: conversation.NewResolver(store, nil, log, m),
		Access:   access.NewChecker(store),
		Messages: store,
		Hub:      hub,
		Log:      log,
		Metrics:  m,
	}
	router := mux.NewRouter()
	protected := router.NewRoute().Subrouter()
	protected.Use(auth.Middleware(bearerIsUser, log))
	RegisterDMRoutes(protected, handler)
	return &testEnv{router: router, store: store, hub: hub, metrics: m}
}

func (e *testEnv) post(t *testing.T, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStartOrGetConversation(t *testing.T) {
	env := newEnv(t)

	rec := env.post(t, "/api/v1/dms/start", "alice", startRequest{UniverseA: "u-beta", UniverseB: "u-alpha"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[startResponse](t, rec)
	assert.True(t, first.Created)
	assert.Equal(t, pairing.RoomName(first.ConversationID), first.RoomName)

	rec = env.post(t, "/api/v1/dms/start", "bob", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[startResponse](t, rec)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.False(t, second.Created)
	assert.Equal(t, 1, env.store.ConversationCount())
}

func TestStartRejections(t *testing.T) {
	env := newEnv(t)
	cases := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"no bearer", "", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"}, http.StatusUnauthorized},
		{"outsider", "carol", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"}, http.StatusForbidden},
		{"self pair", "alice", startRequest{UniverseA: "u-alpha", UniverseB: "u-alpha"}, http.StatusBadRequest},
		{"missing side", "alice", startRequest{UniverseA: "u-alpha"}, http.StatusBadRequest},
		{"unknown field", "alice", map[string]string{"user1": "u-alpha"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.post(t, "/api/v1/dms/start", tc.user, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
	assert.Equal(t, 0, env.store.ConversationCount())
}

func TestSendResolvesConversation(t *testing.T) {
	env := newEnv(t)

	rec := env.post(t, "/api/v1/dms/send", "alice", sendRequest{
		SenderUniverseID: "u-alpha", RecipientUniverseID: "u-beta", Content: "  hi bob ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[models.DMMessage](t, rec)
	assert.Equal(t, "hi bob", msg.Content)
	assert.Equal(t, "u-alpha", msg.SenderUniverseID)

	conv, err := env.store.FindByPair(context.Background(), pairing.Pair{Low: "u-alpha", High: "u-beta"})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Len(t, env.store.Messages(conv.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.MessagesSentTotal))

	rec = env.post(t, "/api/v1/dms/send", "bob", sendRequest{
		ConversationID: conv.ID, SenderUniverseID: "u-beta", Content: "hi alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, env.store.Messages(conv.ID), 2)
}

func TestSendAuthorization(t *testing.T) {
	env := newEnv(t)
	rec := env.post(t, "/api/v1/dms/start", "alice", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"})
	convID := decode[startResponse](t, rec).ConversationID

	cases := []struct {
		name   string
		user   string
		req    sendRequest
		status int
	}{
		{"impersonating the other side", "alice", sendRequest{ConversationID: convID, SenderUniverseID: "u-beta", Content: "x"}, http.StatusForbidden},
		{"outsider on existing conversation", "carol", sendRequest{ConversationID: convID, SenderUniverseID: "u-gamma", Content: "x"}, http.StatusForbidden},
		{"unowned sender without conversation", "carol", sendRequest{SenderUniverseID: "u-alpha", RecipientUniverseID: "u-beta", Content: "x"}, http.StatusForbidden},
		{"unknown conversation", "alice", sendRequest{ConversationID: "missing", SenderUniverseID: "u-alpha", Content: "x"}, http.StatusForbidden},
		{"empty content", "alice", sendRequest{ConversationID: convID, SenderUniverseID: "u-alpha", Content: "   "}, http.StatusBadRequest},
		{"no target", "alice", sendRequest{SenderUniverseID: "u-alpha", Content: "x"}, http.StatusBadRequest},
		{"too long", "alice", sendRequest{ConversationID: convID, SenderUniverseID: "u-alpha", Content: strings.Repeat("a", maxContentLength+1)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.post(t, "/api/v1/dms/send", tc.user, tc.req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, env.store.Messages(convID))
}

func TestServeWSReceivesSentMessages(t *testing.T) {
	env := newEnv(t)
	rec := env.post(t, "/api/v1/dms/start", "alice", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"})
	convID := decode[startResponse](t, rec).ConversationID

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dms?conversation_id=" + convID

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer carol"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer bob"}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Subscribers(convID) == 1 }, time.Second, 10*time.Millisecond)

	rec = env.post(t, "/api/v1/dms/send", "alice", sendRequest{ConversationID: convID, SenderUniverseID: "u-alpha", Content: "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg models.DMMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "ping", msg.Content)
	assert.Equal(t, convID, msg.ConversationID)
}

func TestSendRejectionDoesNotRevealParticipants(t *testing.T) {
	env := newEnv(t)
	rec := env.post(t, "/api/v1/dms/start", "alice", startRequest{UniverseA: "u-alpha", UniverseB: "u-beta"})
	convID := decode[startResponse](t, rec).ConversationID

	asParticipant := env.post(t, "/api/v1/dms/send", "carol", sendRequest{ConversationID: convID, SenderUniverseID: "u-alpha", Content: "x"})
	asStranger := env.post(t, "/api/v1/dms/send", "carol", sendRequest{ConversationID: convID, SenderUniverseID: "u-gamma", Content: "x"})

	assert.Equal(t, http.StatusForbidden, asParticipant.Code)
	assert.Equal(t, asStranger.Code, asParticipant.Code)
	assert.Equal(t, asStranger.Body.String(), asParticipant.Body.String())
}

func TestUnknownCounterpartCreatesNothing(t *testing.T) {
	env := newEnv(t)

	rec := env.post(t, "/api/v1/dms/start", "alice", startRequest{UniverseA: "u-alpha", UniverseB: "u-made-up"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = env.post(t, "/api/v1/dms/send", "alice", sendRequest{
		SenderUniverseID: "u-alpha", RecipientUniverseID: "u-made-up", Content: "hello?",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, 0, env.store.ConversationCount())
}
