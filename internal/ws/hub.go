// Package ws fans out conversation events to websocket subscribers.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one websocket subscription to one conversation.
type Client struct {
	ID             string
	UserID         string
	UniverseID     string
	ConversationID string
	Send           chan []byte
	Conn           *websocket.Conn
}

func NewClient(conn *websocket.Conn, conversationID, universeID, userID string) *Client {
	return &Client{
		ID:             uuid.NewString(),
		UserID:         userID,
		UniverseID:     universeID,
		ConversationID: conversationID,
		Send:           make(chan []byte, sendBuffer),
		Conn:           conn,
	}
}

type Message struct {
	ConversationID string
	Data           []byte
}

// Hub owns the subscriber sets. Only Run mutates them; mu guards reads
// from other goroutines.
type Hub struct {
	clients    map[string]map[*Client]struct{} // conversation id -> clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	mu         sync.RWMutex

	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message),
		done:       make(chan struct{}),
		log:        log.Component("hub"),
		metrics:    m,
	}
}

// Run processes subscriptions and broadcasts until ctx is done, then
// closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for convID, clients := range h.clients {
				for client := range clients {
					h.drop(convID, client)
				}
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ConversationID] == nil {
				h.clients[client.ConversationID] = make(map[*Client]struct{})
			}
			h.clients[client.ConversationID][client] = struct{}{}
			h.mu.Unlock()
			h.metrics.WebsocketSubscribers.Inc()
			h.log.Debug().Str("client_id", client.ID).Str("conversation_id", client.ConversationID).Msg("subscriber joined")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ConversationID][client]; ok {
				h.drop(client.ConversationID, client)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.ConversationID] {
				select {
				case client.Send <- msg.Data:
				default:
					h.log.Warn().Str("client_id", client.ID).Msg("subscriber too slow, dropping")
					h.drop(msg.ConversationID, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(convID string, client *Client) {
	delete(h.clients[convID], client)
	if len(h.clients[convID]) == 0 {
		delete(h.clients, convID)
	}
	close(client.Send)
	h.metrics.WebsocketSubscribers.Dec()
}

// Register subscribes client. It returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish delivers data to every subscriber of conversationID.
func (h *Hub) Publish(ctx context.Context, conversationID string, data []byte) error {
	select {
	case h.broadcast <- Message{ConversationID: conversationID, Data: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers is the number of open subscriptions to conversationID.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[conversationID])
}

// Serve registers client and pumps its connection until either side goes
// away. It blocks until the read side ends.
func (h *Hub) Serve(client *Client) {
	if !h.Register(client) {
		client.Conn.Close()
		return
	}
	go h.writePump(client)
	h.readPump(client)
}

// readPump only services control frames; subscribers send messages over
// HTTP so that every message is authorized and stored first.
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.Unregister(client)
		client.Conn.Close()
	}()
	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("subscriber read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
