// Package httpapi exposes ingestion triggers and creator management over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/pagemeta"
)

// UserHeader carries the caller's user ID, set by the authenticating proxy.
const UserHeader = "X-User-ID"

const userKey = "user_id"

// Refresher runs ingestion passes.
type Refresher interface {
	Refresh(ctx context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error)
	RefreshBatched(ctx context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error)
}

// CreatorStore is the subset of storage used by the creator routes.
type CreatorStore interface {
	CreateCreator(ctx context.Context, c *model.Creator) error
	GetCreator(ctx context.Context, id string) (*model.Creator, error)
	CountContent(ctx context.Context, creatorID string) (int, error)
}

// MetaReader looks up page metadata used to name new creators.
type MetaReader interface {
	Fetch(ctx context.Context, pageURL string) (pagemeta.Meta, error)
}

// Handler serves the API routes.
type Handler struct {
	refresher  Refresher
	store      CreatorStore
	meta       MetaReader
	cronSecret string
	log        *slog.Logger
}

// NewHandler creates a Handler. An empty cronSecret rejects every cron call.
// meta may be nil.
func NewHandler(refresher Refresher, store CreatorStore, meta MetaReader, cronSecret string, log *slog.Logger) *Handler {
	return &Handler{
		refresher:  refresher,
		store:      store,
		meta:       meta,
		cronSecret: cronSecret,
		log:        log,
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/detect", h.Detect)

	user := api.Group("", h.RequireUser())
	user.POST("/refresh", h.RefreshUser)
	user.POST("/creators", h.CreateCreator)
	user.GET("/creators/:id", h.GetCreator)

	cron := api.Group("/cron", h.RequireCronSecret())
	cron.POST("/refresh", h.RefreshAll)
	cron.GET("/refresh", h.RefreshAll)
	cron.POST("/users/:userID/refresh", h.RefreshUserCron)
	cron.POST("/linkedin", h.RefreshLinkedIn)
	cron.GET("/linkedin", h.RefreshLinkedIn)

	return r
}

// RequireUser rejects requests without a user header.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(UserHeader))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userKey, uid)
		c.Next()
	}
}

// RequireCronSecret checks "Authorization: Bearer <secret>".
func (h *Handler) RequireCronSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if h.cronSecret == "" || !ok ||
			subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

// Server runs the HTTP listener until its context ends.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer creates a Server for addr.
func NewServer(addr string, h http.Handler, log *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
