package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ocr-web/internal/app"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
	"github.com/joseph-ayodele/ocr-web/internal/server"
	"github.com/joseph-ayodele/ocr-web/internal/uploader"
)

func main() {
	cfg := common.LoadConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// HTTP access logs go through zap.
	zcfg := zap.NewProductionConfig()
	if zl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(zl)
	}
	zlog, err := zcfg.Build()
	if err != nil {
		logger.Error("build access logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = zlog.Sync() }()

	p, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	shell, err := app.New(p,
		app.WithAllowList(uploader.AllowList{PDF: cfg.PDF.Enabled}),
		app.WithLogger(logger),
	)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(shell, cfg.Server, server.WithLogger(zlog))
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	if cfg.Server.GRPCAddr != "" {
		hs := server.NewHealthServer(zlog)
		g.Go(func() error { return hs.ListenAndServe(gctx, cfg.Server.GRPCAddr) })
	}
	logger.Info("ocrd started",
		"http_addr", cfg.Server.HTTPAddr, "grpc_addr", cfg.Server.GRPCAddr,
		"pdf_enabled", cfg.PDF.Enabled, "max_upload_bytes", cfg.Server.MaxUploadBytes)

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	shell.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped", "at", time.Now().UTC().Format(time.RFC3339))
}
