// Package api serves the bot's HTTP surface: inbound *Arr webhooks, the
// dashboard REST API and the live WebSocket feed.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	apimw "github.com/plexbot/plexbot/internal/api/middleware"
	"github.com/plexbot/plexbot/internal/aggregator"
	"github.com/plexbot/plexbot/internal/arr"
	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/history"
	"github.com/plexbot/plexbot/internal/logger"
	"github.com/plexbot/plexbot/internal/notify"
	"github.com/plexbot/plexbot/internal/plex"
	"github.com/plexbot/plexbot/internal/scan"
	"github.com/plexbot/plexbot/internal/scheduler"
	"github.com/plexbot/plexbot/internal/status"
	"github.com/plexbot/plexbot/internal/users"
	"github.com/plexbot/plexbot/internal/webhook"
	"github.com/plexbot/plexbot/internal/websocket"
)

// Deps holds everything the server exposes over HTTP.
type Deps struct {
	Config     *config.Config
	Log        *logger.Logger
	Hub        *websocket.Hub
	Aggregator *aggregator.Aggregator
	Dispatcher *notify.Dispatcher
	Scanner    *scan.Coordinator
	Store      *status.Store
	History    *history.Service
	Users      *users.Service
	Plex       *plex.Client
	Arr        *arr.Service
	Scheduler  *scheduler.Scheduler
}

// Server handles HTTP requests for the PlexBot API.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
	deps   Deps
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		logger: logger.With().Str("component", "api").Logger(),
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Security headers
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit (2MB)
	s.echo.Use(middleware.BodyLimit("2M"))

	// CORS
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	// Gzip compression
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	// Inbound *Arr webhooks
	webhookHandlers := webhook.NewHandlers(s.deps.Aggregator, s.deps.Dispatcher, s.logger)
	webhookHandlers.RegisterRoutes(s.echo.Group("/webhook"))

	api := s.echo.Group("/api")

	api.GET("/status", s.getStatus)
	api.GET("/notifications", s.listNotifications)
	api.GET("/notifications/history", s.listNotificationHistory)
	api.GET("/users/mappings", s.listUserMappings)
	api.GET("/users/counts", s.listUserCounts)
	api.GET("/users/:discordId/notifications", s.listUserNotifications)

	api.GET("/scans", s.listScans)
	api.POST("/scan", s.triggerScan)
	api.POST("/scan/item", s.triggerItemScan)
	api.GET("/libraries", s.listLibraries)
	api.GET("/activities", s.listActivities)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:id/run", s.runTask)

	api.POST("/arr/test", s.testArrInstance)
	api.POST("/arr/webhook", s.syncArrWebhooks)

	api.GET("/logs", s.getRecentLogs)
	api.GET("/logs/download", s.downloadLogFile)

	// Live activity feed
	s.echo.GET("/ws", s.deps.Hub.HandleWebSocket)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
