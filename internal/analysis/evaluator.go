package analysis

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/engine/uci"
)

var ErrEngineUnavailable = errors.New("evaluation engine unavailable")

// Evaluation is a score from the perspective of the side to move.
type Evaluation struct {
	Centipawns int `json:"centipawns"`
	Mate       int `json:"mate,omitempty"`
	Depth      int `json:"depth"`
}

type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (Evaluation, error)
}

type EngineConfig struct {
	BinaryPath string
	Depth      int
	Threads    int
	HashMB     int
}

func (c EngineConfig) options(logger *zap.Logger) uci.Options {
	hash := c.HashMB
	if hash <= 0 {
		hash = 16
	}
	return uci.Options{Threads: c.Threads, HashMB: hash, Logger: logger}
}

func (c EngineConfig) limits() uci.Limits {
	depth := c.Depth
	if depth <= 0 {
		depth = 15
	}
	return uci.Limits{Depth: depth}
}

// SpawnEvaluator starts a fresh engine process for every evaluation and tears it down afterwards.
type SpawnEvaluator struct {
	cfg EngineConfig
	log *zap.Logger
}

func NewSpawnEvaluator(cfg EngineConfig, logger *zap.Logger) *SpawnEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpawnEvaluator{cfg: cfg, log: logger}
}

func (e *SpawnEvaluator) Evaluate(ctx context.Context, fen string) (Evaluation, error) {
	if _, err := exec.LookPath(e.cfg.BinaryPath); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	session, err := uci.NewSession(ctx, e.cfg.BinaryPath, e.cfg.options(e.log))
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.log.Debug("engine_close_failed", zap.Error(cerr))
		}
	}()
	return search(ctx, session, fen, e.cfg.limits())
}

// PoolEvaluator checks sessions out of a uci.Pool, one per evaluation.
type PoolEvaluator struct {
	pool   *uci.Pool
	limits uci.Limits
}

func NewPoolEvaluator(cfg EngineConfig, capacity int, logger *zap.Logger) (*PoolEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Capacity:   capacity,
		Options:    cfg.options(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return &PoolEvaluator{pool: pool, limits: cfg.limits()}, nil
}

func (e *PoolEvaluator) Evaluate(ctx context.Context, fen string) (Evaluation, error) {
	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	ev, err := search(ctx, session, fen, e.limits)
	e.pool.Release(session, err)
	return ev, err
}

func (e *PoolEvaluator) Close() error { return e.pool.Close() }

func search(ctx context.Context, session *uci.Session, fen string, limits uci.Limits) (Evaluation, error) {
	if err := session.NewGame(ctx); err != nil {
		return Evaluation{}, fmt.Errorf("reset engine: %w", err)
	}
	resp, err := session.Search(ctx, uci.SearchRequest{FEN: fen, Limits: limits})
	if err != nil {
		return Evaluation{}, fmt.Errorf("search: %w", err)
	}
	return Evaluation{
		Centipawns: resp.Score.Centipawns,
		Mate:       resp.Score.Mate,
		Depth:      resp.Depth,
	}, nil
}
