package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 16
)

// liveMessage is one outcome as pushed to websocket clients.
type liveMessage struct {
	Address      string   `json:"address"`
	Scale        string   `json:"scale"`
	LiterSize    float64  `json:"liter_size"`
	RSSI         int16    `json:"rssi"`
	WeightKg     *float64 `json:"weight_kg,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	Error        string   `json:"error,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

type liveClient struct {
	send chan []byte
}

// Hub fans outcomes out to websocket clients. It is a publisher, so it receives the same
// change-suppressed stream as every other sink. Slow clients miss messages rather than block.
type Hub struct {
	mu       sync.Mutex
	clients  map[*liveClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*liveClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: zap.L(),
	}
}

func (h *Hub) Write(_ context.Context, outcomes []model.Outcome) error {
	for _, o := range outcomes {
		msg := liveMessage{
			Address:   o.Address,
			Scale:     o.Scale.DisplayName(),
			LiterSize: o.Scale.LiterSize,
			RSSI:      o.RSSI,
			Timestamp: o.ReceivedAt.UTC().Format(time.RFC3339),
		}
		if o.Failed() {
			msg.Error = o.ErrorKind()
		} else {
			msg.WeightKg = &o.Reading.WeightKg
			if t := o.Reading.Temperature; t != nil {
				msg.TemperatureC = &t.Celsius
			}
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		h.broadcast(data)
	}
	return nil
}

func (h *Hub) RegisterScale(context.Context, model.ScaleDescriptor) error {
	return nil
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("live client too slow, dropping message")
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client. Later upgrades are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &liveClient{send: make(chan []byte, clientBuffer)}
	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}
	go h.writeLoop(conn, c)
	h.readLoop(conn, c)
}

// readLoop discards client frames; it exists to process pongs and notice disconnects.
func (h *Hub) readLoop(conn *websocket.Conn, c *liveClient) {
	defer func() {
		h.remove(c)
		conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *liveClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
