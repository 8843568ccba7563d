package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every frame sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsClient is one connected subscriber. importID, when set, narrows the
// stream to a single import.
type wsClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	importID string
}

// WebSocketHandler streams status events to connected clients. It consumes
// the broadcaster firehose; per-context throttlers and the allowed-context
// whitelist keep high-frequency line progress from flooding the wire.
type WebSocketHandler struct {
	logger      arbor.ILogger
	broadcaster interfaces.StatusBroadcaster

	mu      sync.RWMutex
	clients map[*wsClient]bool

	allowedContexts map[string]bool          // empty = allow all
	throttlers      map[string]*rate.Limiter // per status context

	// serverInstanceID changes on restart; clients clear replay state on change
	serverInstanceID string

	stopFirehose func()
	done         chan struct{}
}

func NewWebSocketHandler(broadcaster interfaces.StatusBroadcaster, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		broadcaster:      broadcaster,
		clients:          make(map[*wsClient]bool),
		allowedContexts:  make(map[string]bool),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, context := range config.AllowedContexts {
			h.allowedContexts[context] = true
		}
		for context, intervalStr := range config.ThrottleIntervals {
			interval, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("context", context).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval - throttler disabled")
				continue
			}
			h.throttlers[context] = rate.NewLimiter(rate.Every(interval), 1)
		}
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Int("allowed_contexts", len(h.allowedContexts)).
		Int("throttled_contexts", len(h.throttlers)).
		Msg("WebSocket handler initialized")
	return h
}

// Start subscribes to the broadcaster firehose and begins forwarding
func (h *WebSocketHandler) Start() {
	events, cancel := h.broadcaster.SubscribeAll()
	h.stopFirehose = cancel
	h.done = make(chan struct{})

	done := h.done
	common.SafeGo(h.logger, "websocket:firehose", func() {
		defer close(done)
		for event := range events {
			h.forward(event)
		}
	})
}

// Stop cancels the firehose subscription and closes every client
func (h *WebSocketHandler) Stop() {
	if h.stopFirehose != nil {
		h.stopFirehose()
		<-h.done
	}

	h.mu.Lock()
	for client := range h.clients {
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()
}

// HandleWebSocket upgrades the connection and registers the client.
// ?import_id=<id> narrows the stream to one import.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:     conn,
		importID: r.URL.Query().Get("import_id"),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("remote", r.RemoteAddr).
		Str("import_id", client.importID).
		Int("clients", count).
		Msg("WebSocket client connected")

	h.send(client, WSMessage{
		Type: "connected",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	})

	// Read loop exists only to observe the close
	go func() {
		defer h.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// forward fans one status event out to matching clients
func (h *WebSocketHandler) forward(event models.StatusEvent) {
	if len(h.allowedContexts) > 0 && !h.allowedContexts[event.Context] {
		return
	}
	if limiter, ok := h.throttlers[event.Context]; ok && !limiter.Allow() {
		return
	}

	message := WSMessage{Type: "status_event", Payload: event}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.importID != "" && client.importID != event.ImportID {
			continue
		}
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.send(client, message)
	}
}

func (h *WebSocketHandler) send(client *wsClient, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Str("type", message.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	client.writeMu.Lock()
	err = client.conn.WriteMessage(websocket.TextMessage, data)
	client.writeMu.Unlock()
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed - dropping client")
		h.remove(client)
	}
}

func (h *WebSocketHandler) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.conn.Close()
	}
	h.mu.Unlock()
}
