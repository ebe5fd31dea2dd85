// Package server exposes the GIF picker sessions and the media cache over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgduncan/go-media-cache/gif"
)

const (
	// DefaultBodyLimit caps request bodies.
	DefaultBodyLimit = "1M"

	// DefaultMedia is the media client used when /media names no cache.
	DefaultMedia = "gifs"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	BodyLimit       string              // Max request body size (default: 1M)
	MetricsEnabled  bool                // Whether to expose the Prometheus endpoint
	MetricsEndpoint string              // HTTP path for metrics (default: /metrics)
	Gatherer        prometheus.Gatherer // Source of metrics (default: prometheus.DefaultGatherer)
}

// New creates the HTTP server. registry may be nil when no search provider is
// configured; picker routes then answer 503. media maps a cache name to the
// client /media uses for it, normally one whose transport serves from that
// BlobCache.
func New(registry *gif.Registry, media map[string]*http.Client, cfg *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(registry, media, logger)

	bodyLimit := DefaultBodyLimit
	if cfg != nil && cfg.BodyLimit != "" {
		bodyLimit = cfg.BodyLimit
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))

	e.GET("/healthz", handler.Health)

	if cfg != nil && cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}

		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	e.GET("/media", handler.Media)

	pickers := e.Group("/pickers")
	pickers.POST("", handler.Create)
	pickers.DELETE("", handler.RemoveAll)
	pickers.GET("/:id", handler.Get)
	pickers.DELETE("/:id", handler.Remove)
	pickers.POST("/:id/open", handler.Open)
	pickers.POST("/:id/search", handler.Search)
	pickers.POST("/:id/resize", handler.Resize)
	pickers.POST("/:id/scroll", handler.Scroll)
	pickers.POST("/:id/select", handler.Select)
	pickers.DELETE("/:id/select", handler.ClearSelection)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
