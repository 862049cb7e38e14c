package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wayfare/wayfare/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
	maxIncomingMessageBytes = 1 << 20
)

// WebSocketConfig configures websocket handler behavior.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the websocket event format.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// incomingMessage lets clients narrow the stream to one saga instance.
type incomingMessage struct {
	Type       string         `json:"type"`
	InstanceID string         `json:"instance_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type wsClient struct {
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
	closeOnce     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:          conn,
		send:          make(chan []byte, defaultSendBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *wsClient) subscribe(instanceID string) {
	if instanceID == "" {
		return
	}
	c.mu.Lock()
	c.subscriptions[instanceID] = struct{}{}
	c.mu.Unlock()
}

func (c *wsClient) unsubscribe(instanceID string) {
	if instanceID == "" {
		return
	}
	c.mu.Lock()
	delete(c.subscriptions, instanceID)
	c.mu.Unlock()
}

// shouldReceive reports whether the client wants events for the given
// instance. No subscriptions means the whole stream.
func (c *wsClient) shouldReceive(instanceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[instanceID]
	return ok
}

// ConnectionManager tracks active websocket clients and fans events
// out to them.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
	}
}

// Register adds a client, refusing it at capacity.
func (m *ConnectionManager) Register(client *wsClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errors.New("websocket connection limit reached")
	}
	m.clients[client] = struct{}{}
	return nil
}

// Unregister removes and closes a client. Safe to call twice.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	_, ok := m.clients[client]
	delete(m.clients, client)
	m.mu.Unlock()
	if ok {
		client.close()
	}
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

func (m *ConnectionManager) snapshot() []*wsClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	return clients
}

// Broadcast delivers the event to matching clients. Clients whose send
// buffer is full are dropped rather than allowed to stall the stream.
func (m *ConnectionManager) Broadcast(event EventMessage) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}
	instanceID := instanceIDFromPayload(event.Payload)

	var stalled []*wsClient
	for _, client := range m.snapshot() {
		if !client.shouldReceive(instanceID) {
			continue
		}
		select {
		case client.send <- encoded:
		default:
			stalled = append(stalled, client)
		}
	}
	for _, client := range stalled {
		m.Unregister(client)
	}
	return nil
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	for _, client := range m.snapshot() {
		m.Unregister(client)
	}
}

// WebSocketHandler serves the instance event stream endpoint.
type WebSocketHandler struct {
	log          logger.Logger
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	origins := append([]string(nil), cfg.AllowedOrigins...)

	return &WebSocketHandler{
		log:          log,
		manager:      NewConnectionManager(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return isWebSocketOriginAllowed(r, origins)
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the client loops until the
// peer disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.manager.CanAccept() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	client := newWSClient(conn)
	if err := h.manager.Register(client); err != nil {
		deadline := time.Now().Add(h.writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"), deadline)
		_ = conn.Close()
		return
	}

	go h.streamEvents(client)
	h.consumeRequests(client)
}

// consumeRequests reads subscription messages until the connection
// drops. Pong frames extend the read deadline.
func (h *WebSocketHandler) consumeRequests(client *wsClient) {
	defer h.manager.Unregister(client)

	budget := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(maxIncomingMessageBytes)
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(budget))
	})
	_ = client.conn.SetReadDeadline(time.Now().Add(budget))

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if h.log != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}

		var message incomingMessage
		if err := json.Unmarshal(data, &message); err != nil {
			continue
		}
		h.applySubscription(client, message)
	}
}

// streamEvents writes queued events and periodic pings. A closed send
// channel means the client was unregistered.
func (h *WebSocketHandler) streamEvents(client *wsClient) {
	pings := time.NewTicker(h.pingInterval)
	defer func() {
		pings.Stop()
		h.manager.Unregister(client)
	}()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				deadline := time.Now().Add(h.writeTimeout)
				_ = client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if client.conn.WriteMessage(websocket.TextMessage, data) != nil {
				return
			}
		case <-pings.C:
			deadline := time.Now().Add(h.writeTimeout)
			if client.conn.WriteControl(websocket.PingMessage, nil, deadline) != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) applySubscription(client *wsClient, message incomingMessage) {
	instanceID := strings.TrimSpace(message.InstanceID)
	if instanceID == "" {
		instanceID = strings.TrimSpace(instanceIDFromPayload(message.Payload))
	}

	switch strings.ToLower(strings.TrimSpace(message.Type)) {
	case "subscribe":
		client.subscribe(instanceID)
	case "unsubscribe":
		client.unsubscribe(instanceID)
	}
}

// Broadcast sends an event to matching websocket clients, stamping the
// timestamp when the caller left it zero.
func (h *WebSocketHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return h.manager.Broadcast(event)
}

// Close closes all websocket clients.
func (h *WebSocketHandler) Close() {
	h.manager.Close()
}

func instanceIDFromPayload(payload any) string {
	switch value := payload.(type) {
	case map[string]any:
		id, _ := value["instance_id"].(string)
		return id
	case map[string]string:
		return value["instance_id"]
	default:
		return ""
	}
}

// isWebSocketOriginAllowed accepts requests without an Origin header,
// origins on the configured allow list, and same-host origins.
func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
