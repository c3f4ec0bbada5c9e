package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"secure-relay-backend/internal/models"
	"secure-relay-backend/internal/services"
	"secure-relay-backend/internal/utils"
)

// StreamOptions bounds a participant connection.
type StreamOptions struct {
	MaxChunkBytes int64
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	CheckOrigin   func(origin string) bool
}

// StreamController serves the persistent participant channel. Each
// connection gets one reader goroutine, which relays stream_chunk frames,
// and one writer goroutine, which drains the participant's queue.
type StreamController struct {
	registry *services.ConnectionRegistry
	stream   *services.StreamService
	upgrader websocket.Upgrader
	opts     StreamOptions
	logger   *slog.Logger
}

type connectedData struct {
	ID string `json:"id"`
}

func NewStreamController(registry *services.ConnectionRegistry, stream *services.StreamService, opts StreamOptions, logger *slog.Logger) *StreamController {
	c := &StreamController{
		registry: registry,
		stream:   stream,
		opts:     opts,
		logger:   logger,
	}
	c.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if opts.CheckOrigin == nil {
				return true
			}
			return opts.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return c
}

func (c *StreamController) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		c.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := utils.GenerateConnectionID()
	p := c.registry.Register(id)
	c.logger.Info("client connected", "conn", id, "remote", r.RemoteAddr)

	defer func() {
		c.registry.Unregister(id)
		_ = conn.Close()
		c.logger.Info("client disconnected", "conn", id)
	}()

	go c.writePump(conn, p)
	c.readPump(conn, id)
}

func (c *StreamController) pongWait() time.Duration {
	return 2 * c.opts.PingInterval
}

func (c *StreamController) readPump(conn *websocket.Conn, id string) {
	conn.SetReadLimit(c.opts.MaxChunkBytes)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "conn", id, "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait()))

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("ignoring malformed frame", "conn", id, "err", err)
			continue
		}

		switch frame.Event {
		case models.EventStreamChunk:
			if err := c.stream.RelayChunk(id, frame.Data); err != nil {
				c.logger.Debug("stream chunk rejected", "conn", id, "err", err)
			}
		default:
			c.logger.Debug("ignoring unknown event", "conn", id, "event", frame.Event)
		}
	}
}

func (c *StreamController) writePump(conn *websocket.Conn, p *services.Participant) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	hello, _ := json.Marshal(connectedData{ID: p.ID})
	if frame, err := models.EncodeFrame(models.EventConnected, hello); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	for {
		select {
		case frame, ok := <-p.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if !ok {
				// Unregistered, possibly for being too slow.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("delivery failed", "conn", p.ID, "err", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
