// Package gateway exposes the session layer to frontends over websockets:
// inbound JSON commands, outbound state events.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/app"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/timer"
)

// RetroApp defines what the gateway needs from the application layer.
type RetroApp interface {
	SessionState() app.SessionState
	Board() models.Board
	TimerState() timer.State
	RevealMode() models.RevealMode
	ParticipantCount() int

	AddItem(category models.Category, text string) (models.Item, error)
	EditItem(category models.Category, itemID, text string) error
	DeleteItem(category models.Category, itemID string) error
	VoteItem(category models.Category, itemID string) error
	AddTeamMember(name string) error
	RemoveTeamMember(name string) error
	SetSprintMeta(name, date string)
	ExportMarkdown() (content, filename string)

	CreateSession(ctx context.Context, startFresh bool) (string, error)
	JoinSession(ctx context.Context, code string) error
	LeaveSession(ctx context.Context) error
	EndSession(ctx context.Context) error
	StartFresh(ctx context.Context) error

	SetTimerDuration(minutes int) error
	StartTimer() error
	PauseTimer() error
	ResetTimer() error

	SetRevealMode(mode models.RevealMode) error
	ToggleReveal() error
}

// Config holds websocket connection settings.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default websocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8192,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub manages websocket clients and fans application events out to them.
// It implements app.Notifier.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
	config   Config
	app      RetroApp

	broadcastCh chan *Event
}

var _ app.Notifier = (*Hub)(nil)

// NewHub returns a hub with no clients.
func NewHub(config Config) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *Event, 256),
	}
}

// Bind attaches the application layer. Must be called before serving; it is
// separate from NewHub because the App takes the hub as its Notifier at
// construction time.
func (h *Hub) Bind(a RetroApp) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.app = a
}

// Start processes broadcast events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case event := <-h.broadcastCh:
			h.handleBroadcast(event)
		}
	}
}

// HandleWS upgrades an HTTP request and starts serving the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	h.sendSnapshot(c)
	log.Info().Str("client_id", c.id).Msg("websocket client connected")
}

// ClientCount returns the number of connected frontends.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notice implements app.Notifier.
func (h *Hub) Notice(msg string) {
	h.broadcast(EventTypeNotice, NoticePayload{Message: msg})
}

// BoardChanged implements app.Notifier.
func (h *Hub) BoardChanged(b models.Board) {
	h.broadcast(EventTypeBoardChanged, BoardPayload{RetroData: b})
}

// TimerChanged implements app.Notifier.
func (h *Hub) TimerChanged(s timer.State) {
	h.broadcast(EventTypeTimerChanged, NewTimerPayload(s))
}

// RevealChanged implements app.Notifier.
func (h *Hub) RevealChanged(mode models.RevealMode) {
	h.broadcast(EventTypeRevealChanged, RevealPayload{HideMode: mode})
}

// PresenceChanged implements app.Notifier.
func (h *Hub) PresenceChanged(count int) {
	h.broadcast(EventTypePresenceChanged, PresencePayload{Count: count})
}

// SessionChanged implements app.Notifier.
func (h *Hub) SessionChanged(s app.SessionState) {
	h.broadcast(EventTypeSessionChanged, s)
}

func (h *Hub) broadcast(t EventType, payload any) {
	event, err := NewEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().Str("event_type", string(t)).Msg("broadcast channel full, dropping event")
	}
}

func (h *Hub) handleBroadcast(event *Event) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("client_id", c.id).Msg("client send buffer full, closing connection")
			h.unregister(c)
			c.conn.Close()
		}
	}
}

// sendSnapshot pushes the current application state to a single client so
// a reconnecting frontend renders immediately.
func (h *Hub) sendSnapshot(c *client) {
	h.mu.RLock()
	a := h.app
	h.mu.RUnlock()
	if a == nil {
		return
	}

	c.sendEvent(EventTypeSessionChanged, a.SessionState())
	c.sendEvent(EventTypeBoardChanged, BoardPayload{RetroData: a.Board()})
	c.sendEvent(EventTypeTimerChanged, NewTimerPayload(a.TimerState()))
	c.sendEvent(EventTypeRevealChanged, RevealPayload{HideMode: a.RevealMode()})
	c.sendEvent(EventTypePresenceChanged, PresencePayload{Count: a.ParticipantCount()})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Info().Str("client_id", c.id).Msg("websocket client disconnected")
	}
}

// client is one connected frontend.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// sendEvent marshals and queues an event for this client only.
func (c *client) sendEvent(t EventType, payload any) {
	event, err := NewEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("client_id", c.id).Msg("client send buffer full, dropping event")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("client_id", c.id).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.id).Msg("unexpected websocket close")
			}
			break
		}
		c.handleMessage(message)
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

func (c *client) handleMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.sendError("", fmt.Errorf("malformed command: %w", err))
		return
	}

	c.hub.mu.RLock()
	a := c.hub.app
	c.hub.mu.RUnlock()
	if a == nil {
		c.sendError(cmd.Action, fmt.Errorf("application not ready"))
		return
	}
	c.hub.dispatch(context.Background(), a, c, cmd)
}
