package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue-api/pkg/messaging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Hub fans broker events out to connected websocket clients. Each topic
// gets one bridge goroutine subscribed to the broker; the bridge stops when
// the last client leaves the topic.
type Hub struct {
	broker messaging.Broker
	logger *zerolog.Logger

	mu      sync.Mutex
	rooms   map[string]map[*client]bool
	bridges map[string]context.CancelFunc
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	topics    []string
	closeOnce sync.Once
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func NewHub(broker messaging.Broker, logger *zerolog.Logger) *Hub {
	return &Hub{
		broker:  broker,
		logger:  logger,
		rooms:   make(map[string]map[*client]bool),
		bridges: make(map[string]context.CancelFunc),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range c.topics {
		room, ok := h.rooms[topic]
		if !ok {
			room = make(map[*client]bool)
			h.rooms[topic] = room
			h.startBridge(topic)
		}
		room[c] = true
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes the client from every room it joined, tears down
// bridges for rooms it emptied, and closes its send channel. A client must
// leave all rooms before the close: a closed channel still reachable from
// another room would panic the next broadcast. Callers hold h.mu.
func (h *Hub) dropLocked(c *client) {
	for _, topic := range c.topics {
		room, ok := h.rooms[topic]
		if !ok {
			continue
		}
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, topic)
			h.stopBridge(topic)
		}
	}
	c.closeSend()
}

// broadcast delivers to every client in the topic's room. A client whose
// send buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) broadcast(topic string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[topic] {
		select {
		case c.send <- message:
		default:
			h.dropLocked(c)
			h.logger.Warn().Str("topic", topic).Msg("dropped slow websocket client")
		}
	}
}

// startBridge runs under h.mu.
func (h *Hub) startBridge(topic string) {
	ctx, cancel := context.WithCancel(context.Background())
	h.bridges[topic] = cancel

	go func() {
		messages, err := h.broker.Subscribe(ctx, topic)
		if err != nil {
			h.logger.Error().Err(err).Str("topic", topic).Msg("failed to subscribe to topic")
			return
		}
		for msg := range messages {
			h.broadcast(topic, msg)
		}
	}()
}

// stopBridge runs under h.mu.
func (h *Hub) stopBridge(topic string) {
	if cancel, ok := h.bridges[topic]; ok {
		cancel()
		delete(h.bridges, topic)
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// process control frames and detect the close.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
