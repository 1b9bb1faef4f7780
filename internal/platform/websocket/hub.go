// Package websocket fans out change notices to open agenda views. Clients
// subscribe to topics and receive every event published on them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event is one notice sent to subscribers of Topic. Origin names the
// publisher; a client registered with the same owner does not receive its
// own events.
type Event struct {
	Type       string          `json:"tipo"`
	Topic      string          `json:"topico"`
	ResourceID string          `json:"id,omitempty"`
	Origin     string          `json:"origem,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"dados,omitempty"`
}

// ClientMessage is what a client sends to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	ID     string
	Owner  string
	Topics []string
	Send   chan []byte
	conn   Conn
}

// Hub tracks clients by topic. Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.add(topic, client)
	}
}

func (h *Hub) add(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) remove(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Unregister drops the client from every topic and closes Send. Calling it
// twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.remove(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range topics {
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.add(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
		h.remove(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast never blocks: a client whose buffer is full misses the event.
func (h *Hub) Broadcast(event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("failed to marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients[event.Topic] {
		if event.Origin != "" && client.Owner == event.Origin {
			continue
		}
		select {
		case client.Send <- data:
			sent++
		default:
			h.logger.Debug().Str("client", client.ID).Msg("client buffer full, event dropped")
		}
	}
	return sent
}

func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.Broadcast(event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Handler upgrades HTTP connections and pumps messages between the socket
// and the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts upgrades from the given origins. "*" or an empty list
// accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	anyOrigin := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if anyOrigin || origin == "" {
					return true
				}
				_, ok := allowed[strings.TrimRight(origin, "/")]
				return ok
			},
		},
	}
}

// HandleConnect registers the client under ?owner= and the comma-separated
// ?topics= before any message is read.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var topics []string
	for _, t := range strings.Split(c.QueryParam("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := &Client{
		ID:     uuid.New().String(),
		Owner:  c.QueryParam("owner"),
		Topics: topics,
		Send:   make(chan []byte, 64),
		conn:   ws,
	}
	wsh.hub.Register(client)

	go wsh.writePump(client)
	go wsh.readPump(client)
	return nil
}

func (wsh *Handler) readPump(client *Client) {
	defer func() {
		wsh.hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
