// Package server is the HTTP facade of the knowledge service. It
// translates JSON requests into use-case calls and error kinds into
// status codes; no business logic lives here.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/usecases"
)

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int
	// DiagramsDir serves static architecture diagrams under /diagrams when
	// set.
	DiagramsDir string
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Server exposes the knowledge service over HTTP.
type Server struct {
	echo   *echo.Echo
	svc    usecases.Service
	logger *zap.Logger
	config Config
}

// New creates the server and registers all routes.
func New(svc usecases.Service, logger *zap.Logger, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		svc:    svc,
		logger: logger.Named("http"),
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	if s.config.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.config.MetricsHandler))
	}
	if s.config.DiagramsDir != "" {
		e.Static("/diagrams", s.config.DiagramsDir)
	}

	e.POST("/subscriptions/", s.handleCreateSubscription)
	e.GET("/subscriptions/", s.handleListSubscriptions)
	e.GET("/subscriptions/:sid", s.handleGetSubscription)
	e.DELETE("/subscriptions/:sid", s.handleDeleteSubscription)
	e.GET("/subscriptions/:sid/resource-types", s.handleSubscriptionResourceTypes)
	e.GET("/subscriptions/:sid/collections", s.handleSubscriptionCollections)
	e.POST("/subscriptions/:sid/collections", s.handleCreateCollection)

	e.GET("/collections/:cid", s.handleGetCollection)
	e.DELETE("/collections/:cid", s.handleDeleteCollection)
	e.GET("/collections/:cid/resource-types", s.handleCollectionResourceTypes)
	e.GET("/collections/:cid/resources", s.handleListResources)
	e.POST("/collections/:cid/query", s.handleQueryCollection)
	e.POST("/collections/:cid/:rtid", s.handleUploadResource)

	e.GET("/resources/:rid", s.handleGetResource)
	e.DELETE("/resources/:rid", s.handleDeleteResource)
	e.POST("/resource/:rid/query", s.handleQueryResource)

	e.GET("/resource-types/", s.handleListResourceTypes)
	e.POST("/resource-types/", s.handleCreateResourceType)

	e.GET("/query-results/:qid", s.handleQueryResult)
	e.GET("/query-results/:qid/metadata", s.handleQueryMetadata)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
