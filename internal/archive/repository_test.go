package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/store"
)

func finishedGame() *store.Game {
	return &store.Game{
		ID:          "g1",
		PlayerWhite: "alice",
		PlayerBlack: "bo\"b",
		Moves:       []string{"f3", "e5", "g4", "Qh4#"},
		Status:      store.StatusFinished,
		Winner:      "bo\"b",
		Method:      "checkmate",
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(finishedGame())
	for _, want := range []string{
		"[Date \"2026.03.01\"]",
		"[White \"alice\"]",
		"[Black \"bo'b\"]",
		"[Termination \"checkmate\"]",
		"[Result \"0-1\"]",
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestResultToken(t *testing.T) {
	g := finishedGame()
	if got := ResultToken(g); got != "0-1" {
		t.Fatalf("black win: %q", got)
	}
	g.Winner = g.PlayerWhite
	if got := ResultToken(g); got != "1-0" {
		t.Fatalf("white win: %q", got)
	}
	g.Status, g.Winner = store.StatusDraw, ""
	if got := ResultToken(g); got != "1/2-1/2" {
		t.Fatalf("draw: %q", got)
	}
	g.Status = store.StatusOnGoing
	if got := ResultToken(g); got != "*" {
		t.Fatalf("ongoing: %q", got)
	}
}

func TestNilRepositoryIsNoop(t *testing.T) {
	var r *Repository
	if err := r.SaveResult(context.Background(), finishedGame()); err != nil {
		t.Fatalf("nil repository should be a no-op: %v", err)
	}
	if _, err := NewRepository(context.Background(), " "); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

type recordedExec struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls []recordedExec
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, recordedExec{query: query, args: args})
	return nil, f.err
}

func TestSaveResult_UpsertArguments(t *testing.T) {
	fx := &fakeExecer{}
	r := &Repository{exec: fx}
	g := finishedGame()
	g.Quality.Blunder.PlayerWhite = 1

	if err := r.SaveResult(context.Background(), g); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if len(fx.calls) != 1 {
		t.Fatalf("expected one statement, got %d", len(fx.calls))
	}
	call := fx.calls[0]
	if !strings.Contains(call.query, "INSERT INTO arena_games") || !strings.Contains(call.query, "ON CONFLICT (game_id) DO UPDATE") {
		t.Fatalf("unexpected statement: %s", call.query)
	}
	if len(call.args) != 13 {
		t.Fatalf("expected 13 arguments, got %d", len(call.args))
	}
	if call.args[0] != "g1" || call.args[1] != "alice" || call.args[2] != "bo\"b" || call.args[3] != "finished" {
		t.Fatalf("identity arguments = %v", call.args[:4])
	}
	if w, ok := call.args[4].(sql.NullString); !ok || !w.Valid || w.String != "bo\"b" {
		t.Fatalf("winner argument = %#v", call.args[4])
	}
	if call.args[5] != "0-1" || call.args[6] != "checkmate" {
		t.Fatalf("result arguments = %v %v", call.args[5], call.args[6])
	}
	if call.args[7] != `["f3","e5","g4","Qh4#"]` {
		t.Fatalf("moves argument = %v", call.args[7])
	}
	if pgn, _ := call.args[8].(string); !strings.HasSuffix(pgn, "1. f3 e5 2. g4 Qh4# 0-1") {
		t.Fatalf("pgn argument = %q", pgn)
	}
	if q, _ := call.args[9].(string); !strings.Contains(q, `"Blunder":{"playerWhite":1,"playerBlack":0}`) {
		t.Fatalf("quality argument = %v", call.args[9])
	}
	if call.args[12] != int64(5*60*1000) {
		t.Fatalf("duration argument = %v", call.args[12])
	}
}

func TestSaveResult_SkipsOngoingAndReportsErrors(t *testing.T) {
	fx := &fakeExecer{}
	r := &Repository{exec: fx}
	g := finishedGame()
	g.Status, g.Winner = store.StatusOnGoing, ""
	if err := r.SaveResult(context.Background(), g); err != nil || len(fx.calls) != 0 {
		t.Fatalf("ongoing game written: %v %d", err, len(fx.calls))
	}

	g.Status = store.StatusDraw
	if err := r.SaveResult(context.Background(), g); err != nil {
		t.Fatalf("SaveResult draw: %v", err)
	}
	if w := fx.calls[0].args[4].(sql.NullString); w.Valid {
		t.Fatalf("draw must store a NULL winner: %#v", w)
	}
	if fx.calls[0].args[5] != "1/2-1/2" {
		t.Fatalf("draw result = %v", fx.calls[0].args[5])
	}

	boom := errors.New("connection reset")
	fx.err = boom
	if err := r.SaveResult(context.Background(), finishedGame()); !errors.Is(err, boom) {
		t.Fatalf("expected exec error, got %v", err)
	}
}
