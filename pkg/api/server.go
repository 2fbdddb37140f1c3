// Package api serves comparisons and the version catalog over HTTP.
package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/model"
)

// Comparator computes comparisons.
type Comparator interface {
	Compare(ctx context.Context, from, to string) (*model.Comparison, error)
	Refresh(ctx context.Context, from, to string) (*model.Comparison, error)
	PurgeExpired() (int64, error)
	Clear() (int64, error)
}

// Catalog lists known versions.
type Catalog interface {
	List() ([]model.VersionEntry, error)
}

// Defaults is the version pair offered when the user has not picked one,
// taken from the two configured clusters.
type Defaults struct {
	FromVersion string `json:"from_version"`
	ToVersion   string `json:"to_version"`
}

// Options configure a Server.
type Options struct {
	Defaults Defaults
	// Registry backs the /metrics endpoint and the HTTP metrics. A new
	// registry is created when nil.
	Registry *prometheus.Registry
}

// Server is the HTTP front end.
type Server struct {
	echo       *echo.Echo
	comparator Comparator
	catalog    Catalog
	defaults   Defaults
	log        *zap.Logger
}

// New builds the server and registers its routes.
func New(comparator Comparator, catalog Catalog, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		echo:       echo.New(),
		comparator: comparator,
		catalog:    catalog,
		defaults:   opts.Defaults,
		log:        log,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:                 "sidebyside",
		Subsystem:                 "http",
		Registerer:                reg,
		Skipper:                   telemetryURLSkipper,
		DoNotUseRequestPathFor404: true,
		StatusCodeResolver: func(c echo.Context, err error) int {
			if err != nil {
				return statusFor(err)
			}
			return c.Response().Status
		},
	}))
	e.Use(requestLogger(log.Named("http")))

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: reg,
	}))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	g := e.Group("/api")
	g.GET("/versions", s.listVersions)
	g.GET("/defaults", s.getDefaults)
	g.GET("/compare", s.compare)
	g.POST("/compare", s.compare)
	g.POST("/compare/refresh", s.refresh)
	g.DELETE("/cache", s.purgeCache)
	return s
}

// ServeHTTP lets the server be mounted or tested as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("Starting HTTP server", zap.String("listen", addr))
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     telemetryURLSkipper,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				log.Error("Request failed", append(fields, zap.Error(v.Error))...)
			case v.Status >= http.StatusBadRequest:
				log.Warn("Request rejected", append(fields, zap.Error(v.Error))...)
			default:
				log.Info("Request", fields...)
			}
			return nil
		},
	})
}

// telemetryURLSkipper keeps health checks and scrapes out of logs and metrics.
func telemetryURLSkipper(c echo.Context) bool {
	return slices.Contains([]string{"/health", "/metrics"}, c.Path())
}
