package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
)

type CounterActionRequest struct {
	ArtID uuid.UUID `json:"artId"`
}

type recordFunc func(ctx context.Context, articleID uuid.UUID, id identity.Identity) (int64, error)

func (s *Server) recordAction(c *gin.Context, record recordFunc, countField string) {
	var req CounterActionRequest
	if !s.decodeBody(c, validation.CounterAction, &req) {
		return
	}

	// Absent only when the client cookie middleware did not run; the
	// zero identity is rejected by the counter service.
	id, _ := identity.FromContext(c)

	count, err := record(c.Request.Context(), req.ArtID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{countField: count})
}

// POST /api/article/like
func (s *Server) likeArticle(c *gin.Context) {
	s.recordAction(c, s.deps.Counters.Like, "likeCount")
}

// POST /api/article/view
func (s *Server) viewArticle(c *gin.Context) {
	s.recordAction(c, s.deps.Counters.View, "viewCount")
}
