package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/api/websocket"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"go.uber.org/zap"
)

// streamTarget validates the article id and the client cookie every live
// counter stream needs.
func (s *Server) streamTarget(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	articleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid article id", err.Error())
		return uuid.Nil, uuid.Nil, false
	}

	clientID, ok := s.deps.Resolver.ClientID(c.Request)
	if !ok {
		s.respondError(c, identity.ErrMissingClientID)
		return uuid.Nil, uuid.Nil, false
	}
	return articleID, clientID, true
}

// GET /api/sse/like-count/:id
//
// Server-sent events: one "data:" line per counter change, and a comment line
// on every heartbeat which also keeps the subscription from expiring.
func (s *Server) streamLikeCount(c *gin.Context) {
	articleID, clientID, ok := s.streamTarget(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	session, err := s.deps.Streams.Open(ctx, articleID, clientID.String())
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer session.Close(ctx)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.deps.Streams.HeartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, open := <-session.Events():
			if !open {
				return
			}
			payload, err := evt.Payload()
			if err != nil {
				s.logger.Error("Failed to encode counter event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			c.Writer.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
			session.Refresh(ctx)
		}
	}
}

// GET /api/ws/like-count/:id
func (s *Server) websocketLikeCount(c *gin.Context) {
	articleID, clientID, ok := s.streamTarget(c)
	if !ok {
		return
	}

	if err := s.deps.WSHub.ServeArticle(c.Writer, c.Request, articleID, clientID.String()); err != nil {
		if websocket.IsUpgradeError(err) {
			return
		}
		s.respondError(c, err)
	}
}
