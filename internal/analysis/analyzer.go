package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-arena/internal/rules"
)

const DefaultTimeout = 20 * time.Second

// Verdict is the graded result of one move. Before and After are from White's side.
type Verdict struct {
	Quality Quality `json:"quality"`
	Loss    int     `json:"loss"`
	Before  int     `json:"before"`
	After   int     `json:"after"`
}

type Analyzer struct {
	eval    Evaluator
	timeout time.Duration
	log     *zap.Logger
}

func NewAnalyzer(eval Evaluator, timeout time.Duration, logger *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{eval: eval, timeout: timeout, log: logger}
}

// AnalyzeMove evaluates both positions concurrently and grades the difference.
func (a *Analyzer) AnalyzeMove(ctx context.Context, beforeFEN, afterFEN string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var before, after Evaluation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev, err := a.eval.Evaluate(gctx, beforeFEN)
		if err != nil {
			return fmt.Errorf("evaluate before: %w", err)
		}
		before = ev
		return nil
	})
	g.Go(func() error {
		ev, err := a.eval.Evaluate(gctx, afterFEN)
		if err != nil {
			return fmt.Errorf("evaluate after: %w", err)
		}
		after = ev
		return nil
	})
	if err := g.Wait(); err != nil {
		return Verdict{}, err
	}

	b := fromWhite(beforeFEN, before.Centipawns)
	af := fromWhite(afterFEN, after.Centipawns)
	q, loss := Classify(b, af)
	a.log.Debug("analysis_done",
		zap.Int("before_cp", b),
		zap.Int("after_cp", af),
		zap.Int("loss", loss),
		zap.String("quality", string(q)))
	return Verdict{Quality: q, Loss: loss, Before: b, After: af}, nil
}

// fromWhite flips a side-to-move score when Black is to move.
func fromWhite(fen string, cp int) int {
	if side, ok := rules.SideToMove(fen); ok && side == rules.Black {
		return -cp
	}
	return cp
}
