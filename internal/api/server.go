// Package api exposes the management HTTP surface: task schedules,
// download queue, and blacklist.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/scheduler"
	"github.com/fetcharr/fetcharr/internal/store"
)

// Server handles HTTP requests for the management API.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	scheduler *scheduler.Scheduler
	manager   *download.Manager
	logger    zerolog.Logger
	started   time.Time
}

// NewServer creates the API server and wires its routes.
func NewServer(st *store.Store, sched *scheduler.Scheduler, dm *download.Manager, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		store:     st,
		scheduler: sched,
		manager:   dm,
		logger:    logger.With().Str("component", "api").Logger(),
		started:   time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api")
	api.GET("/status", s.getStatus)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:type/run", s.runTask)
	api.PATCH("/tasks/:type", s.updateTask)

	api.GET("/downloads", s.listDownloads)
	api.DELETE("/downloads/:id", s.cancelDownload)

	api.GET("/blacklist", s.listBlacklist)
}

// Start begins serving on the given address, blocking until shutdown.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("api server starting")
	return s.echo.Start(address)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying echo instance (tests).
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	ctx := c.Request().Context()

	active, err := s.store.ListActiveDownloads(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"version":         config.Version,
		"uptimeSeconds":   int64(time.Since(s.started).Seconds()),
		"activeDownloads": len(active),
	})
}
