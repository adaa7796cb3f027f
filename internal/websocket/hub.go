package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/comfybridge/api/internal/model"
)

// Client represents a WebSocket client subscribed to one prompt's updates.
type Client struct {
	PromptID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub maintains active WebSocket connections, grouped by prompt id.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Broadcast messages to prompt subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	PromptID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.PromptID] == nil {
				h.clients[client.PromptID] = make(map[*Client]bool)
			}
			h.clients[client.PromptID][client] = true
			h.mu.Unlock()
			logrus.Debugf("client registered for prompt %s", client.PromptID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.PromptID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.PromptID)
					}
				}
			}
			h.mu.Unlock()
			logrus.Debugf("client unregistered from prompt %s", client.PromptID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.PromptID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						// Slow client: drop the connection and let its
						// handler unregister through the normal path.
						client.Conn.Close()
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastProgress sends a progress update to all prompt subscribers
func (h *Hub) BroadcastProgress(promptID string, progress int, status model.JobStatus, step string) {
	msg := model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		PromptID:    promptID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("failed to marshal progress message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		PromptID: promptID,
		Message:  data,
	}
}

// BroadcastComplete sends a completion message to all prompt subscribers
func (h *Hub) BroadcastComplete(promptID string, result interface{}) {
	msg := model.WSCompleteMessage{
		Type:     model.WSMessageTypeComplete,
		PromptID: promptID,
		Result:   result,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("failed to marshal complete message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		PromptID: promptID,
		Message:  data,
	}
}

// BroadcastError sends an error message to all prompt subscribers
func (h *Hub) BroadcastError(promptID string, code, message string) {
	msg := model.WSErrorMessage{
		Type:     model.WSMessageTypeError,
		PromptID: promptID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("failed to marshal error message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		PromptID: promptID,
		Message:  data,
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, promptID string) {
	client := &Client{
		PromptID: promptID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("websocket closed for prompt %s: %v", promptID, err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
