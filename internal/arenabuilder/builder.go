package arenabuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/analysis"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/gameapi"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/wsserver"
)

type Deps struct {
	Coordinator *arena.Coordinator
	Hub         *wsserver.Hub
	Handler     http.Handler
	Store       store.Store
	Archive     *archive.Repository

	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	// Game store (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		d.Store = rs
		logger.Info("store_ready", zap.String("backend", "redis"))
	} else {
		d.Store = store.NewMemoryStore()
		logger.Warn("store_ready", zap.String("backend", "memory"))
	}
	d.closers = append(d.closers, d.Store.Close)

	// Archive (Postgres optional)
	var archiver arena.Archiver
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("archive schema: %w", err)
		}
		d.Archive = repo
		archiver = repo
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	resolver, err := buildResolver(cfg)
	if err != nil {
		return nil, err
	}

	evaluator, closeEval := buildEvaluator(cfg, logger.Named("engine"))
	if closeEval != nil {
		d.closers = append(d.closers, closeEval)
	}
	analyzer := analysis.NewAnalyzer(evaluator, cfg.AnalysisTimeout, logger.Named("analysis"))

	d.Hub = wsserver.NewHub(wsserver.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Resolver:       resolver,
		Logger:         logger.Named("ws"),
	})
	coord, err := arena.NewCoordinator(arena.Options{
		Store:    d.Store,
		Notifier: d.Hub,
		Analyzer: analyzer,
		Archive:  archiver,
		Catalog:  catalog,
		Logger:   logger.Named("arena"),
	})
	if err != nil {
		return nil, err
	}
	d.Hub.Attach(coord)
	d.Coordinator = coord
	api := gameapi.New(d.Store, resolver, logger.Named("api"))
	d.Handler = wsserver.Routes(d.Hub, func() map[string]int {
		return map[string]int{"rooms": coord.Registry().RoomCount()}
	}, api)

	ok = true
	return d, nil
}

// Close releases everything New opened, last opened first.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Hub != nil {
		d.Hub.Shutdown()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// buildResolver prefers the remote user service over local token verification.
func buildResolver(cfg *config.AppConfig) (identity.Resolver, error) {
	if u := strings.TrimSpace(cfg.AuthServiceURL); u != "" {
		return identity.NewRemoteResolver(u), nil
	}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		r, err := identity.NewTokenResolver(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("init token resolver: %w", err)
		}
		return r, nil
	}
	return nil, nil
}

// buildEvaluator returns the pool evaluator when configured and usable, else the per-call spawner.
func buildEvaluator(cfg *config.AppConfig, logger *zap.Logger) (analysis.Evaluator, func() error) {
	ec := analysis.EngineConfig{
		BinaryPath: cfg.StockfishPath,
		Depth:      cfg.AnalysisDepth,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
	}
	if cfg.AnalysisMode == config.AnalysisModePool {
		pe, err := analysis.NewPoolEvaluator(ec, cfg.AnalysisPoolSize, logger)
		if err == nil {
			logger.Info("engine_pool_ready", zap.Int("capacity", cfg.AnalysisPoolSize))
			return pe, pe.Close
		}
		logger.Warn("engine_pool_unavailable", zap.Error(err), zap.String("fallback", config.AnalysisModeSpawn))
	}
	return analysis.NewSpawnEvaluator(ec, logger), nil
}
