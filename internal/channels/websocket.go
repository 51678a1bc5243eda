package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crewgate/crewgate/internal/bus"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient wraps a websocket.Conn with a write mutex.
// gorilla/websocket does not support concurrent writes.
type wsClient struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// wsInbound is a frame received from a client.
type wsInbound struct {
	Content string `json:"content"`
}

// wsOutbound is a frame pushed to a client.
type wsOutbound struct {
	Content string `json:"content"`
	ChatID  string `json:"chat_id"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// WebSocketChannel serves local and web clients over a WebSocket endpoint.
// Each connection is one chat: clients connect to /ws?chat=<id>&sender=<id>
// and exchange JSON frames.
type WebSocketChannel struct {
	BaseChannel
	Addr string

	mu      sync.Mutex
	clients map[string]*wsClient // chatID -> connection
	server  *http.Server
}

// NewWebSocketChannel creates a WebSocketChannel listening on addr.
func NewWebSocketChannel(addr string, allowFrom []string, msgBus *bus.MessageBus) *WebSocketChannel {
	return &WebSocketChannel{
		BaseChannel: BaseChannel{
			ChannelName: "websocket",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		Addr:    addr,
		clients: make(map[string]*wsClient),
	}
}

func (w *WebSocketChannel) Name() string    { return "websocket" }
func (w *WebSocketChannel) IsRunning() bool { return w.Running }

// Start serves the WebSocket endpoint until ctx is cancelled.
func (w *WebSocketChannel) Start(ctx context.Context) error {
	if w.Addr == "" {
		return fmt.Errorf("websocket listen address not configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleConnect)

	w.server = &http.Server{Addr: w.Addr, Handler: mux}
	w.Running = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.ListenAndServe()
	}()
	log.Printf("[WebSocket] listening on %s", w.Addr)

	select {
	case <-ctx.Done():
		w.Stop()
		return nil
	case err := <-errCh:
		w.Running = false
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Stop closes the server and all client connections.
func (w *WebSocketChannel) Stop() error {
	w.Running = false

	w.mu.Lock()
	for chatID, c := range w.clients {
		c.Close()
		delete(w.clients, chatID)
	}
	w.mu.Unlock()

	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(ctx)
	}
	return nil
}

// Send pushes a message to the connection serving the chat.
func (w *WebSocketChannel) Send(msg bus.OutboundMessage) error {
	w.mu.Lock()
	client, ok := w.clients[msg.ChatID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("no websocket client for chat %s", msg.ChatID)
	}
	return client.writeJSON(wsOutbound{
		Content: msg.Content,
		ChatID:  msg.ChatID,
		ReplyTo: msg.ReplyTo,
	})
}

func (w *WebSocketChannel) handleConnect(rw http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat")
	if chatID == "" {
		http.Error(rw, "chat query parameter required", http.StatusBadRequest)
		return
	}
	senderID := r.URL.Query().Get("sender")
	if senderID == "" {
		senderID = chatID
	}
	if !w.IsAllowed(senderID) {
		http.Error(rw, "sender not allowed", http.StatusForbidden)
		return
	}

	raw, err := wsUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade failed: %v", err)
		return
	}
	client := &wsClient{Conn: raw}

	w.mu.Lock()
	if old, ok := w.clients[chatID]; ok {
		old.Close()
	}
	w.clients[chatID] = client
	w.mu.Unlock()
	log.Printf("[WebSocket] chat %s connected from %s", chatID, r.RemoteAddr)

	defer func() {
		raw.Close()
		w.mu.Lock()
		if w.clients[chatID] == client {
			delete(w.clients, chatID)
		}
		w.mu.Unlock()
		log.Printf("[WebSocket] chat %s disconnected", chatID)
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var frame wsInbound
		if err := json.Unmarshal(data, &frame); err != nil || frame.Content == "" {
			client.writeJSON(map[string]string{"error": "expected {\"content\": \"...\"}"})
			continue
		}
		w.HandleMessage(senderID, chatID, frame.Content, nil, nil)
	}
}
