package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/api/websocket"
	"github.com/yedhukrishnan/performance-backend/internal/auth"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"github.com/yedhukrishnan/performance-backend/internal/stream"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
	"go.uber.org/zap"
)

// ArticleStore is the read side of the article catalogue.
type ArticleStore interface {
	GetArticle(ctx context.Context, articleID uuid.UUID) (*storage.Article, error)
	ListArticles(ctx context.Context, q storage.ListQuery) ([]storage.ArticleSummary, error)
	SearchArticles(ctx context.Context, term string, category *uuid.UUID, limit int) ([]storage.SearchHit, error)
	ListCategories(ctx context.Context) ([]storage.Category, error)
}

// Counters records likes and views.
type Counters interface {
	Like(ctx context.Context, articleID uuid.UUID, id identity.Identity) (int64, error)
	View(ctx context.Context, articleID uuid.UUID, id identity.Identity) (int64, error)
	State(ctx context.Context, articleID uuid.UUID, id identity.Identity) (liked, viewed bool, err error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the HTTP layer is wired to.
type Dependencies struct {
	Articles  ArticleStore
	Counters  Counters
	Auth      *auth.AuthService
	Resolver  *identity.Resolver
	Streams   *stream.Manager
	Validator *validation.Validator
	WSHub     *websocket.Hub

	// Health maps a component name to its ping.
	Health map[string]Pinger
}

type Server struct {
	router *gin.Engine
	deps   Dependencies
	cfg    config.ServerConfig
	logger *zap.Logger
	server *http.Server

	// streamCtx is the base of every request context; cancelling it ends
	// open streams so Shutdown does not wait on them.
	streamCtx     context.Context
	cancelStreams context.CancelFunc
}

func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		deps:   deps,
		cfg:    cfg.Server,
		logger: logger.Named("rest"),
	}
	s.streamCtx, s.cancelStreams = context.WithCancel(context.Background())

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open indefinitely.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return s.streamCtx },
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	s.cancelStreams()
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.CORSOrigins))

	// Public routes
	s.router.GET("/health", s.healthCheck)

	if s.cfg.ImagesDir != "" {
		images := s.router.Group("/images")
		images.Use(ImmutableCacheMiddleware())
		images.Static("/", s.cfg.ImagesDir)
	}

	api := s.router.Group("/api")
	{
		// ==================== LIVE COUNTERS ====================
		// Streams never mint a client cookie: a stream without one is rejected.
		live := api.Group("")
		{
			live.GET("/sse/like-count/:id", s.streamLikeCount)
			live.GET("/ws/like-count/:id", s.websocketLikeCount)
		}

		// Everything else runs with a client cookie and a resolved identity.
		site := api.Group("")
		site.Use(s.deps.Resolver.ClientCookieMiddleware())
		site.Use(s.deps.Resolver.Middleware())
		{
			site.GET("/categories", s.listCategories)
			site.GET("/articles/:categoryId", s.listArticles)
			site.GET("/articles/s/:categoryId", s.searchArticles)
			site.GET("/article/:id", s.getArticle)

			site.POST("/article/like", s.likeArticle)
			site.POST("/article/view", s.viewArticle)

			// ==================== AUTH ENDPOINTS (PUBLIC) ====================
			site.POST("/signup", s.signup)
			site.POST("/login", s.login)
			site.POST("/refresh", s.refreshToken)
			site.POST("/logout", s.logout)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := api.Group("")
		authProtected.Use(s.deps.Auth.AuthMiddleware())
		{
			authProtected.GET("/me", s.getCurrentUser)
		}
	}
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.deps.Health))
	for name, p := range s.deps.Health {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			components[name] = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "up"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Unix(),
	})
}
