// Package devserver is a stub Knowledge Horizon backend for local
// development and integration tests. It serves the REST surface from seeded
// in-memory data and streams scripted chat turns over SSE, including the
// quirks a client must handle: keepalive frames, mid-stream credential
// refresh and session expiry.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"horizon/internal/api"
	"horizon/internal/chat/stream"
	"horizon/internal/logging"
)

// Config configures the stub backend.
type Config struct {
	Addr  string
	Debug bool
	// ChunkDelay paces SSE frames so streaming is visible in a terminal.
	// Zero means no delay, which tests rely on.
	ChunkDelay time.Duration
	// RefreshEvery rotates the bearer token on every Nth authenticated
	// request via the refresh header. Zero disables rotation.
	RefreshEvery int
}

// DefaultConfig returns the local-development defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:8787",
		ChunkDelay:   40 * time.Millisecond,
		RefreshEvery: 10,
	}
}

// Server is the stub backend.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	store      *memoryStore
	metrics    *serverMetrics
	logger     logging.Logger

	requestCount atomic.Int64
	tokenSerial  atomic.Int64
}

// New builds the server and its routes.
func New(cfg Config, logger logging.Logger) (*Server, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics, err := newServerMetrics()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		store:   newMemoryStore(),
		metrics: metrics,
		logger:  logging.OrNop(logger),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(metrics.middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept"}
	corsConfig.ExposeHeaders = []string{stream.RefreshTokenHeader}
	s.engine.Use(cors.New(corsConfig))

	s.routes()
	return s, nil
}

// Handler exposes the router, used by httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.engine,
		ReadTimeout: 30 * time.Second,
		// No write timeout: SSE connections outlive any sane value.
	}
	s.logger.Info("devserver listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.engine.GET("/metrics", s.metrics.handler())
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := s.engine.Group("/api", s.requireAuth())

	authed.POST("/chat/stream", s.handleChatStream)
	authed.GET("/chats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.conversations())
	})
	authed.GET("/chats/:id", func(c *gin.Context) {
		conversation, ok := s.store.conversation(pathID(c))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, conversation)
	})

	authed.GET("/org", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.organization())
	})
	authed.GET("/org/members", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.members())
	})
	authed.GET("/org/invitations", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.pendingInvitations())
	})
	authed.POST("/org/invitations", func(c *gin.Context) {
		var body struct {
			Email string `json:"email" binding:"required"`
			Role  string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, s.store.invite(body.Email, body.Role))
	})
	authed.DELETE("/org/invitations/:id", func(c *gin.Context) {
		if !s.store.revokeInvitation(pathID(c)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	authed.POST("/org/invitations/:id/resend", func(c *gin.Context) {
		invitation, ok := s.store.resendInvitation(pathID(c))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
			return
		}
		c.JSON(http.StatusOK, invitation)
	})

	authed.GET("/tables", func(c *gin.Context) {
		includeArchived := c.Query("archived") == "true"
		c.JSON(http.StatusOK, s.store.listStreams(includeArchived))
	})
	authed.GET("/tables/:id", func(c *gin.Context) {
		streamRecord, ok := s.store.getStream(pathID(c))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusOK, streamRecord)
	})
	authed.POST("/tables", func(c *gin.Context) {
		var draft api.StreamDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, s.store.createStream(draft))
	})
	authed.PUT("/tables/:id", func(c *gin.Context) {
		var draft api.StreamDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		streamRecord, ok := s.store.updateStream(pathID(c), draft)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusOK, streamRecord)
	})
	authed.POST("/tables/:id/archive", func(c *gin.Context) {
		if !s.store.archiveStream(pathID(c)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	authed.POST("/tables/:id/schedule", func(c *gin.Context) {
		var body struct {
			Cadence string `json:"cadence" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, ok := s.store.getStream(pathID(c)); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin := authed.Group("/admin")
	admin.GET("/orgs", func(c *gin.Context) {
		c.JSON(http.StatusOK, []api.Organization{s.store.organization()})
	})
	admin.GET("/users", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.members())
	})
	admin.GET("/invitations", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.pendingInvitations())
	})
	admin.POST("/users/:id/deactivate", func(c *gin.Context) {
		if !s.store.deactivateUser(pathID(c)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// requireAuth rejects unauthenticated requests and rotates the bearer token
// every RefreshEvery requests so clients exercise the refresh-header path.
// The magic token "expired" always gets a 401, which is how integration
// tests trigger the session-expiry flow.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == "expired" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}

		if n := s.cfg.RefreshEvery; n > 0 {
			if s.requestCount.Add(1)%int64(n) == 0 {
				rotated := fmt.Sprintf("dev-token-%d", s.tokenSerial.Add(1))
				c.Header(stream.RefreshTokenHeader, rotated)
			}
		}
		c.Next()
	}
}

func pathID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return id
}
