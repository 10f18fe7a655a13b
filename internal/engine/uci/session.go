package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	handshakeTimeout = 4 * time.Second
	readyAttempts    = 3
	readyRetryDelay  = 150 * time.Millisecond

	// MateScore replaces a forced-mate score so mates always outweigh material.
	MateScore = 30000
)

var (
	ErrEngineExited = errors.New("engine process exited")
	ErrNoScore      = errors.New("search finished without a score")
)

type Options struct {
	Threads int
	HashMB  int
	Logger  *zap.Logger
}

func (o Options) validate() error {
	if o.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", o.Threads)
	}
	if o.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", o.HashMB)
	}
	return nil
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Session owns one engine process. Searches on a session are serialized.
type Session struct {
	proc  *exec.Cmd
	in    io.WriteCloser
	out   chan string
	quit  chan struct{}
	log   *zap.Logger
	label string

	writeMu  sync.Mutex
	searchMu sync.Mutex
	closed   bool
}

// NewSession starts the engine binary and completes the uci/isready handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The process outlives ctx; Close tears it down.
	proc := exec.Command(binaryPath)
	in, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		proc:  proc,
		in:    in,
		out:   make(chan string, 64),
		quit:  make(chan struct{}),
		log:   logger,
		label: binaryPath,
	}
	go s.readOutput(stdout)

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// readOutput is the only reader of stdout. out is closed once the engine exits.
func (s *Session) readOutput(r io.Reader) {
	defer close(s.out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.out <- line:
		case <-s.quit:
			return
		}
	}
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

// Score is reported from the side to move. Mate is the signed mate distance, 0 when none.
type Score struct {
	Centipawns int
	Mate       int
	IsMate     bool
}

type SearchResponse struct {
	Score     Score
	Depth     int
	BestMove  string
	Principal []string
}

// Search runs one bounded search and returns the last principal-line score before bestmove.
// Without a deadline on ctx the wait is capped by a limit-derived timeout.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	goCmd, err := goCommand(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	position := positionCommand(req.FEN, req.Moves)
	if err := s.send(position, goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("start search: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, searchTimeout(req.Limits))
		defer cancel()
	}

	var (
		resp   SearchResponse
		scored bool
	)
	for {
		line, err := s.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = s.send("stop")
			}
			s.log.Warn("uci_search_aborted",
				zap.String("engine", s.label),
				zap.String("position", position),
				zap.String("go", goCmd),
				zap.Error(err))
			return SearchResponse{}, fmt.Errorf("await bestmove: %w", err)
		}

		if strings.HasPrefix(line, "bestmove") {
			resp.BestMove = bestMove(line)
			if !scored {
				return resp, ErrNoScore
			}
			return resp, nil
		}
		if !strings.HasPrefix(line, "info ") {
			continue
		}
		info, ok := parseInfo(line)
		if !ok || info.multipv != 1 {
			continue
		}
		resp.Score, resp.Depth, scored = info.score, info.depth, true
		if len(info.principal) > 0 {
			resp.Principal = info.principal
		}
	}
}

// EnsureReady round-trips isready within the handshake timeout.
func (s *Session) EnsureReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	return s.expect(ctx, "readyok")
}

// NewGame resets engine state so a reused session carries nothing over.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if err = s.EnsureReady(ctx); err == nil || errors.Is(err, ErrEngineExited) {
			return err
		}
		s.log.Debug("uci_ready_retry", zap.String("engine", s.label), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryDelay):
		}
	}
	return err
}

// Close asks the engine to quit, then kills and reaps the process. It is idempotent.
func (s *Session) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	_, _ = io.WriteString(s.in, "quit\n")
	_ = s.in.Close()
	s.writeMu.Unlock()

	if s.proc.Process != nil {
		_ = s.proc.Process.Kill()
	}
	var exitErr *exec.ExitError
	if err := s.proc.Wait(); err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.expect(ctx, "uciok"); err != nil {
		return err
	}
	threads := max(opt.Threads, 1)
	if err := s.send(
		fmt.Sprintf("setoption name Threads value %d", threads),
		fmt.Sprintf("setoption name Hash value %d", opt.HashMB),
		"isready",
	); err != nil {
		return fmt.Errorf("configure engine: %w", err)
	}
	return s.expect(ctx, "readyok")
}

// send writes each command on its own line.
func (s *Session) send(cmds ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrEngineExited
	}
	for _, c := range cmds {
		if _, err := io.WriteString(s.in, c+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// expect discards output until a line containing token arrives.
func (s *Session) expect(ctx context.Context, token string) error {
	for {
		line, err := s.next(ctx)
		if err != nil {
			return fmt.Errorf("wait %s: %w", token, err)
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.out:
		if !ok {
			return "", ErrEngineExited
		}
		return line, nil
	}
}
