package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yedhukrishnan/performance-backend/internal/stream"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer; clients only send control frames
	maxMessageSize = 512
)

// Client is one websocket watching the counters of one article.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	session   *stream.Session
	logger    *zap.Logger
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// pongWait is how long the peer may stay silent. It spans two heartbeats.
func (c *Client) pongWait() time.Duration {
	return 2*c.hub.streams.HeartbeatInterval() + writeWait
}

// readPump discards everything the peer sends and ends the session when the
// connection goes away.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.session.Close(ctx)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("connection_id", c.session.ID()))
			}
			return
		}
	}
}

// writePump writes one text frame per counter event and pings on every
// heartbeat, refreshing the registry entry at the same time.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.hub.streams.HeartbeatInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case evt, ok := <-c.session.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Session closed
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			payload, err := evt.Payload()
			if err != nil {
				c.logger.Error("Failed to encode counter event", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.session.Refresh(ctx)
		}
	}
}

// ServeArticle opens a counter stream for articleID and upgrades the request.
// The session is opened first so a registry failure can still be answered
// with a plain HTTP error.
func (h *Hub) ServeArticle(w http.ResponseWriter, r *http.Request, articleID uuid.UUID, clientID string) error {
	// The request context ends with the upgrade handler; the pumps outlive it.
	ctx := context.WithoutCancel(r.Context())

	session, err := h.streams.Open(ctx, articleID, clientID)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close(ctx)
		h.logger.Warn("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return errUpgradeFailed
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		session: session,
		logger:  h.logger,
	}

	if !h.join(client) {
		session.Close(ctx)
		client.close()
		return nil
	}

	go client.writePump(ctx)
	go client.readPump(ctx)
	return nil
}

// errUpgradeFailed means the upgrader has already written an HTTP error.
var errUpgradeFailed = errors.New("websocket upgrade failed")

// IsUpgradeError reports whether err came from a failed upgrade, in which
// case the response has already been written.
func IsUpgradeError(err error) bool {
	return errors.Is(err, errUpgradeFailed)
}
