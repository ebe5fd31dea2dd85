// Package main is the entry point for the media cache and GIF picker service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/config"
	"github.com/dgduncan/go-media-cache/gif"
	"github.com/dgduncan/go-media-cache/metrics"
	"github.com/dgduncan/go-media-cache/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default: "+config.DefaultPath+" if present)")
	envFile := flag.String("env", "", "path to a .env file (default: "+config.DefaultEnvFile+" if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	level, _ := c.SlogLevel()
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, release, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer release()
	logger.Info("opened media store", "backend", cfg.Store.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	retry := &gomediacache.RetryConfig{
		MaxRetries:     cfg.Fetch.MaxRetries,
		InitialDelay:   cfg.Fetch.InitialDelay,
		DelayIncrement: cfg.Fetch.DelayIncrement,
	}

	newBlobCache := func(c gomediacache.Config) *gomediacache.BlobCache {
		m := collector.For(c.Name)
		return gomediacache.NewBlobCache(store, gomediacache.NewFetcher(client, retry, logger, m), &c, nil, logger, m)
	}

	gifCfg := gomediacache.GIFConfig()
	gifCfg.TTL = cfg.Cache.GIFTTL
	imageCfg := gomediacache.ImageConfig()
	imageCfg.TTL = cfg.Cache.ImageTTL
	audioCfg := gomediacache.AudioConfig()
	audioCfg.TTL = cfg.Cache.AudioTTL

	media := make(map[string]*http.Client)
	var gifs *gomediacache.BlobCache
	for _, c := range []gomediacache.Config{gifCfg, imageCfg, audioCfg} {
		bc := newBlobCache(c)
		if c.Name == gifCfg.Name {
			gifs = bc
		}
		media[c.Name] = &http.Client{Transport: gomediacache.New(bc, logger)(nil)}
	}

	registry, err := newRegistry(cfg, gomediacache.NewFetcher(client, retry, logger, collector.For("search")), gifs, logger)
	if err != nil {
		return err
	}
	if registry != nil {
		collector.Sessions(registry.Len)
	}

	srv := server.New(registry, media, &server.Config{
		BodyLimit:       cfg.Server.BodyLimit,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Gatherer:        reg,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "address", cfg.Server.Addr)
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if registry != nil {
		if err := registry.RemoveAll(); err != nil {
			logger.Warn("failed to close pickers", "error", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// newRegistry returns a nil registry when no search key is configured.
func newRegistry(cfg *config.Config, fetcher *gomediacache.Fetcher, media gif.MediaLoader, logger *slog.Logger) (*gif.Registry, error) {
	locale, country := gif.Locale(cfg.GIF.Language)
	searcher, err := gif.NewClient(fetcher, gif.ClientConfig{
		BaseURL:     cfg.GIF.BaseURL,
		APIKey:      cfg.GIF.APIKey,
		ClientKey:   cfg.GIF.ClientKey,
		Locale:      locale,
		Country:     country,
		MediaFilter: cfg.GIF.MediaFilter,
	}, logger)
	if errors.Is(err, gif.ErrMissingAPIKey) {
		logger.Warn("no search key configured, gif pickers are disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	opts := gif.DefaultConfig()
	opts.DebounceDelay = cfg.GIF.DebounceDelay
	return gif.NewRegistry(searcher, media, &opts, logger), nil
}
