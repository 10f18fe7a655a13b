package uci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("engine pool closed")

type PoolConfig struct {
	BinaryPath string
	Capacity   int
	Options    Options
}

// Pool lends engine sessions exclusively. At most Capacity sessions exist, idle or lent.
type Pool struct {
	binary   string
	opt      Options
	capacity int
	slots    *semaphore.Weighted

	mu     sync.Mutex
	idle   []*Session
	lent   map[*Session]struct{}
	closed bool
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("engine binary path required")
	}
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary: %w", err)
	}
	if err := cfg.Options.validate(); err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	return &Pool{
		binary:   cfg.BinaryPath,
		opt:      cfg.Options,
		capacity: capacity,
		slots:    semaphore.NewWeighted(int64(capacity)),
		lent:     make(map[*Session]struct{}),
	}, nil
}

func (p *Pool) Capacity() int { return p.capacity }

// Acquire waits for a free slot, then hands out a healthy idle session or starts a new one.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	for {
		s, closed := p.popIdle()
		if closed {
			p.slots.Release(1)
			return nil, ErrPoolClosed
		}
		if s == nil {
			break
		}
		if err := s.EnsureReady(ctx); err != nil {
			_ = s.Close()
			continue
		}
		p.lend(s)
		return s, nil
	}

	s, err := NewSession(ctx, p.binary, p.opt)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	p.lend(s)
	return s, nil
}

// Release returns a lent session. A non-nil err retires it instead of keeping it idle.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	_, owned := p.lent[s]
	delete(p.lent, s)
	keep := owned && err == nil && !p.closed
	if keep {
		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()

	if !keep {
		_ = s.Close()
	}
	if owned {
		p.slots.Release(1)
	}
}

// Close stops idle sessions. Lent sessions are stopped as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) popIdle() (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, true
	}
	n := len(p.idle)
	if n == 0 {
		return nil, false
	}
	s := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return s, false
}

func (p *Pool) lend(s *Session) {
	p.mu.Lock()
	p.lent[s] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// DefaultCapacity is NumCPU clamped to [2, 4].
func DefaultCapacity() int {
	return min(max(runtime.NumCPU(), 2), 4)
}
