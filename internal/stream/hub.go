// Package stream broadcasts live orchestration events to websocket
// subscribers, keyed by project.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"appforge/internal/logging"
	"appforge/internal/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients of generated previews connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans orchestration events out to the subscribers of each
// project. Publish never blocks: slow subscribers get dropped when
// their buffer fills.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]bool
	log   *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan orchestrator.Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]bool),
		log:   logging.L().Named("stream"),
	}
}

// ProjectSink returns an EventSink publishing into one project's room.
func (h *Hub) ProjectSink(projectID string) orchestrator.EventSink {
	return sinkFunc(func(ev orchestrator.Event) { h.publish(projectID, ev) })
}

type sinkFunc func(orchestrator.Event)

func (f sinkFunc) Publish(ev orchestrator.Event) { f(ev) }

func (h *Hub) publish(projectID string, ev orchestrator.Event) {
	h.mu.RLock()
	room := h.rooms[projectID]
	var stale []*client
	for c := range room {
		select {
		case c.send <- ev:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.remove(projectID, c)
	}
}

func (h *Hub) add(projectID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*client]bool)
	}
	h.rooms[projectID][c] = true
}

func (h *Hub) remove(projectID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.rooms[projectID]; room[c] {
		delete(room, c)
		close(c.send)
		if len(room) == 0 {
			delete(h.rooms, projectID)
		}
	}
}

// Subscribers reports the current subscriber count for a project.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Handler upgrades the connection and streams the project's events
// until the client disconnects. Route it as GET /ws/:projectId.
func (h *Hub) Handler(c *gin.Context) {
	projectID := c.Param("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project id required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan orchestrator.Event, sendBufferSize)}
	h.add(projectID, cl)
	h.log.Info("subscriber connected", zap.String("project_id", projectID))

	go h.writePump(projectID, cl)
	go h.readPump(projectID, cl)
}

// writePump serializes events to the socket and keeps the connection
// alive with pings.
func (h *Hub) writePump(projectID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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

// readPump discards inbound messages; the stream is one-way. It exists
// to process pongs and notice disconnects.
func (h *Hub) readPump(projectID string, c *client) {
	defer func() {
		h.remove(projectID, c)
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
