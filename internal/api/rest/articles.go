package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
)

const (
	defaultPageSize   = 12
	maxPageSize       = 50
	defaultSearchSize = 5
)

type ArticleResponse struct {
	Article  *storage.Article `json:"article"`
	IsLiked  bool             `json:"isLiked"`
	IsViewed bool             `json:"isViewed"`
}

type ArticleListResponse struct {
	Articles   []storage.ArticleSummary `json:"articles"`
	NextCursor *time.Time               `json:"nextCursor"`
}

// parseCategory reads the category path parameter. The nil UUID selects
// every category.
func parseCategory(c *gin.Context) (*uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("categoryId"))
	if err != nil {
		badRequest(c, "Invalid category id", err.Error())
		return nil, false
	}
	if id == uuid.Nil {
		return nil, true
	}
	return &id, true
}

func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		badRequest(c, "Invalid limit", raw)
		return 0, false
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, true
}

// GET /api/categories
func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.deps.Articles.ListCategories(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if categories == nil {
		categories = []storage.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GET /api/articles/:categoryId?cursor=&limit=
func (s *Server) listArticles(c *gin.Context) {
	category, ok := parseCategory(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, defaultPageSize)
	if !ok {
		return
	}

	q := storage.ListQuery{Category: category, Limit: limit}
	if raw := c.Query("cursor"); raw != "" {
		cursor, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "Invalid cursor", raw)
			return
		}
		q.Cursor = &cursor
	}

	articles, err := s.deps.Articles.ListArticles(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := ArticleListResponse{Articles: articles}
	if resp.Articles == nil {
		resp.Articles = []storage.ArticleSummary{}
	}
	if len(articles) > 0 {
		last := articles[len(articles)-1].Timestamp
		resp.NextCursor = &last
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/articles/s/:categoryId?term=&limit=
func (s *Server) searchArticles(c *gin.Context) {
	category, ok := parseCategory(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, defaultSearchSize)
	if !ok {
		return
	}

	term := strings.TrimSpace(c.Query("term"))
	if term == "" {
		c.JSON(http.StatusOK, gin.H{"articles": []storage.SearchHit{}})
		return
	}

	hits, err := s.deps.Articles.SearchArticles(c.Request.Context(), term, category, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if hits == nil {
		hits = []storage.SearchHit{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": hits})
}

// GET /api/article/:id
func (s *Server) getArticle(c *gin.Context) {
	articleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid article id", err.Error())
		return
	}

	ctx := c.Request.Context()
	article, err := s.deps.Articles.GetArticle(ctx, articleID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	id, _ := identity.FromContext(c)
	liked, viewed, err := s.deps.Counters.State(ctx, articleID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ArticleResponse{Article: article, IsLiked: liked, IsViewed: viewed})
}
