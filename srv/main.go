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
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/ebookbot/bookcompiler"
	ebookbot "github.com/opd-ai/ebookbot/src"
	"github.com/opd-ai/ebookbot/srv/generator"
)

var configPath = flag.String("config", "", "optional YAML config file")

func main() {
	flag.Parse()

	cfg, err := ebookbot.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	logger := ebookbot.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	cfg.Logger = logger
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	shutdownTracing, err := ebookbot.InitTracing(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Error("initialising tracing", "err", err)
		os.Exit(2)
	}
	defer shutdownTracing(context.Background())

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.Server.RunsDir, "images")
	}

	imageClient, err := ebookbot.NewImageClient(cfg.Images)
	if err != nil {
		logger.Error("creating image client", "err", err)
		os.Exit(2)
	}
	runner := &generator.Runner{
		Config: cfg,
		Client: ebookbot.NewClaudeClient(cfg),
		Images: ebookbot.NewImageCache(cfg.ImageCacheDir(), imageClient, cfg.Images, logger),
		NewRenderer: func(l *slog.Logger) ebookbot.Renderer {
			return bookcompiler.NewBookCompiler(l)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(ctx, cfg.Server, runner.Generate, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.Server.TLSCert != "" && cfg.Server.TLSKey != ""
	if useTLS {
		if err := ensureCertificate(cfg.Server.TLSCert, cfg.Server.TLSKey); err != nil {
			logger.Error("preparing TLS certificate", "err", err)
			os.Exit(2)
		}
		httpServer.TLSConfig = tlsConfig()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.Server.Addr, "tls", useTLS)
		var err error
		if useTLS {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
