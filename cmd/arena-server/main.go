package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/wsserver"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := arenabuilder.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("arena_init_error", zap.Error(err))
	}

	srv := wsserver.NewServer(":"+strconv.Itoa(cfg.Port), deps.Handler)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_started", zap.Int("port", cfg.Port), zap.String("analysis_mode", cfg.AnalysisMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deps.Hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_error", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("deps_close_error", zap.Error(err))
	}
	logger.Info("server_stopped")
}
