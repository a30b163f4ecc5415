// Package livefeed pushes board moves and schema changes to connected WebSocket clients.
package livefeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/hylla/slate/internal/adapters/server/common"
	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/domain"
)

// MessageType identifies one live-feed payload kind.
type MessageType string

// MessageType values.
const (
	MessageTypeHello         MessageType = "hello"
	MessageTypeMove          MessageType = "move"
	MessageTypeChange        MessageType = "change"
	MessageTypeSchemaUpdated MessageType = "schema_updated"
)

const (
	broadcastBuffer = 64
	writeTimeout    = 5 * time.Second
)

// SchemaChange describes one rebuilt schema document.
type SchemaChange struct {
	Hash         string                `json:"hash"`
	PreviousHash string                `json:"previous_hash,omitempty"`
	Omitted      []common.OmittedField `json:"omitted,omitempty"`
}

// Message is one frame sent to every client.
type Message struct {
	Type      MessageType         `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	BoardID   string              `json:"board_id,omitempty"`
	Event     *common.ChangeEvent `json:"event,omitempty"`
	Schema    *SchemaChange       `json:"schema,omitempty"`
}

// Hub tracks WebSocket clients and fans out broadcast messages.
type Hub struct {
	logger *log.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	closed  bool

	broadcast chan Message
}

var (
	_ app.EventSink  = (*Hub)(nil)
	_ app.SchemaSink = (*Hub)(nil)
)

// NewHub constructs one hub. Call Run to start delivery.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Hub{
		logger:    logger,
		clock:     time.Now,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, broadcastBuffer),
	}
}

// Run drains the broadcast queue until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.deliver(ctx, msg)
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// Clients reports the connected client count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishChange forwards one committed board change.
func (h *Hub) PublishChange(_ context.Context, event domain.ChangeEvent) {
	msgType := MessageTypeChange
	if event.Operation == domain.ChangeOperationMove || event.Operation == domain.ChangeOperationRenormalize {
		msgType = MessageTypeMove
	}
	mapped := common.MapChangeEvent(event)
	h.enqueue(Message{
		Type:      msgType,
		Timestamp: event.OccurredAt,
		BoardID:   event.BoardID,
		Event:     &mapped,
	})
}

// PublishSchema forwards one rebuilt schema document.
func (h *Hub) PublishSchema(_ context.Context, update app.SchemaUpdated) error {
	change := &SchemaChange{Hash: update.Hash, PreviousHash: update.PreviousHash}
	for _, def := range update.Document.Definitions() {
		for _, outcome := range update.Omitted[def.Entity()] {
			change.Omitted = append(change.Omitted, common.OmittedField{
				Entity: def.Entity(),
				Field:  outcome.Name,
				Reason: string(outcome.Reason),
			})
		}
	}
	h.enqueue(Message{
		Type:      MessageTypeSchemaUpdated,
		Timestamp: update.At,
		Schema:    change,
	})
	return nil
}

// ServeHTTP upgrades one request and holds it open until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("live feed client connected", "clients", count)

	ctx := r.Context()
	if err := h.write(ctx, conn, Message{Type: MessageTypeHello, Timestamp: h.clock().UTC()}); err != nil {
		h.remove(conn)
		return
	}

	// Client frames are ignored; reading surfaces disconnects.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			h.remove(conn)
			return
		}
	}
}

// enqueue queues one message without blocking publishers.
func (h *Hub) enqueue(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.clock().UTC()
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("live feed queue full, dropping message", "type", msg.Type)
	}
}

// deliver writes one message to every client, dropping clients that fail.
func (h *Hub) deliver(ctx context.Context, msg Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := h.write(ctx, conn, msg); err != nil {
			h.logger.Debug("live feed write failed", "type", msg.Type, "err", err)
			h.remove(conn)
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Debug("live feed client disconnected", "clients", count)
}
