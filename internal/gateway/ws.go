package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/pda-labs/gamecore/pkg/messaging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFeed is the envelope pushed to websocket subscribers
type wsFeed struct {
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
}

// WSClient is one connected websocket subscriber
type WSClient struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}
}

// Hub fans engine events out to websocket subscribers. It subscribes to the
// game, liquidity and referral subjects on NATS and relays every message.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*WSClient
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*WSClient)}
}

// Run subscribes the hub to the engine event subjects. A nil messaging
// client leaves the feed silent, connections still work.
func (h *Hub) Run(msg *messaging.Client) {
	if msg == nil {
		return
	}
	for _, subject := range []string{"game.>", "liquidity.>", "referral.>"} {
		if err := msg.Subscribe(subject, h.relay); err != nil {
			log.Printf("gateway: subscribe %s failed: %v", subject, err)
		}
	}
}

func (h *Hub) relay(m *nats.Msg) {
	data, err := json.Marshal(wsFeed{Subject: m.Subject, Payload: m.Data})
	if err != nil {
		return
	}
	h.Broadcast(data)
}

// Broadcast pushes a message to every connected client, dropping it for
// clients whose send buffer is full.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- message:
		default:
		}
	}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &WSClient{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, 64),
		Done: make(chan struct{}),
	}
	g.hub.add(client)

	go g.wsReadPump(client)
	go g.wsWritePump(client)
}

func (g *Gateway) wsReadPump(client *WSClient) {
	defer func() {
		g.hub.remove(client)
		close(client.Done)
		client.Conn.Close()
	}()

	// the feed is one-way; reads only detect disconnects
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) wsWritePump(client *WSClient) {
	for {
		select {
		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.Done:
			return
		}
	}
}
