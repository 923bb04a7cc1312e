package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wenjin/chatd/ai"
	"github.com/wenjin/chatd/chat"
	"github.com/wenjin/chatd/internal/profile"
	"github.com/wenjin/chatd/store"
)

// Server wires the session orchestrator to an HTTP/SSE surface.
type Server struct {
	echo         *echo.Echo
	profile      *profile.Profile
	store        *store.Store
	orchestrator *chat.Orchestrator
	limiter      *RateLimiter
}

// NewServer creates the HTTP server around a store and generation
// provider.
func NewServer(_ context.Context, profile *profile.Profile, st *store.Store, provider ai.Provider) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:         e,
		profile:      profile,
		store:        st,
		orchestrator: chat.NewOrchestrator(st, provider),
		limiter:      NewRateLimiter(),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/v1")
	s.registerConversationRoutes(g)
	s.registerChatRoutes(g)

	return s, nil
}

// Orchestrator exposes the session orchestrator, used by tests.
func (s *Server) Orchestrator() *chat.Orchestrator {
	return s.orchestrator
}

const shutdownTimeout = 10 * time.Second

// Start serves HTTP until ctx is cancelled, then drains the listener
// gracefully. It returns once both the serve loop and the shutdown
// watcher have finished.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server starting", "address", address, "version", s.profile.Version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the listener if it is still serving and releases the
// store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}
