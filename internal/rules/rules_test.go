package rules

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestApply_UCIAndSAN(t *testing.T) {
	p, err := Replay(nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if p.Turn() != White {
		t.Fatalf("expected white to move, got %s", p.Turn())
	}

	a, err := p.Apply("e2e4")
	if err != nil {
		t.Fatalf("Apply UCI: %v", err)
	}
	if a.SAN != "e4" || a.UCI != "e2e4" || a.Color != White || a.From != "e2" || a.To != "e4" {
		t.Fatalf("unexpected applied move: %+v", a)
	}

	b, err := p.Apply("Nc6")
	if err != nil {
		t.Fatalf("Apply SAN: %v", err)
	}
	if b.UCI != "b8c6" || b.Color != Black {
		t.Fatalf("unexpected applied move: %+v", b)
	}
	if b.Before != a.After {
		t.Fatalf("before/after mismatch: %q vs %q", b.Before, a.After)
	}
	if got := p.Moves(); len(got) != 2 || got[0] != "e4" || got[1] != "Nc6" {
		t.Fatalf("unexpected moves: %v", got)
	}
}

func TestApply_IllegalLeavesPositionUnchanged(t *testing.T) {
	p, _ := Replay([]string{"e4"})
	fen := p.FEN()
	for _, mv := range []string{"", "e4", "e2e5", "Ke3", "garbage"} {
		if _, err := p.Apply(mv); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("Apply(%q): expected ErrIllegalMove, got %v", mv, err)
		}
	}
	if p.FEN() != fen || len(p.Moves()) != 1 {
		t.Fatalf("position changed after rejected moves")
	}
}

func TestApply_CoordinateMoveNeverFallsBackToSAN(t *testing.T) {
	p, _ := Replay([]string{"e4"})
	if _, err := p.Apply("e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("Apply(e2e5): expected ErrIllegalMove, got %v", err)
	}
	if _, err := p.Apply("E7E5"); err != nil {
		t.Fatalf("Apply(E7E5): %v", err)
	}
	if got := p.Moves(); len(got) != 2 || got[1] != "e5" {
		t.Fatalf("moves = %v", got)
	}
}

func TestApply_PromotionRequiresPiece(t *testing.T) {
	p, err := Replay([]string{"e4", "d5", "exd5", "c6", "dxc6", "Nf6", "cxb7", "Nbd7"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	fen := p.FEN()

	mv, err := MoveFromPayload([]byte(`{"from":"b7","to":"b8"}`))
	if err != nil {
		t.Fatalf("MoveFromPayload: %v", err)
	}
	if _, err := p.Apply(mv); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("Apply(%q): expected ErrIllegalMove, got %v", mv, err)
	}
	if p.FEN() != fen {
		t.Fatalf("position changed after rejected promotion")
	}

	a, err := p.Apply("b7b8n")
	if err != nil {
		t.Fatalf("Apply(b7b8n): %v", err)
	}
	if a.Promotion != "n" || a.SAN != "b8=N" {
		t.Fatalf("unexpected promotion: %+v", a)
	}
}

func TestSANDestination(t *testing.T) {
	cases := map[string]string{
		"e4":    "e4",
		"Nbd7":  "d7",
		"exd5+": "d5",
		"b8=Q#": "b8",
		"O-O":   "",
	}
	for in, want := range cases {
		if got := sanDestination(in); got != want {
			t.Fatalf("sanDestination(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReplay_CorruptRecord(t *testing.T) {
	if _, err := Replay([]string{"e4", "e5", "Qxf7"}); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestOutcome_Checkmate(t *testing.T) {
	p, err := Replay([]string{"f3", "e5", "g4"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if p.Outcome().Over {
		t.Fatalf("game should not be over yet")
	}
	a, err := p.Apply("Qh4#")
	if err != nil {
		t.Fatalf("Apply mate: %v", err)
	}
	if a.SAN != "Qh4#" {
		t.Fatalf("unexpected SAN %q", a.SAN)
	}
	o := p.Outcome()
	if !o.Over || o.Draw || o.Winner != Black || o.Method != "checkmate" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if _, err := p.Apply("e2e3"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("move after mate should be refused, got %v", err)
	}
}

func TestOutcome_ThreefoldClaimedAutomatically(t *testing.T) {
	shuffle := []string{"Nf3", "Nf6", "Ng1", "Ng8", "Nf3", "Nf6", "Ng1", "Ng8"}
	p, err := Replay(shuffle)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	o := p.Outcome()
	if !o.Over || !o.Draw || o.Winner != "" {
		t.Fatalf("expected draw after threefold repetition, got %+v", o)
	}
}

func TestMoveFromPayload(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"e4"`, "e4", true},
		{`" e2e4 "`, "e2e4", true},
		{`{"from":"E7","to":"e8","promotion":"Q"}`, "e7e8q", true},
		{`{"from":"g1","to":"f3"}`, "g1f3", true},
		{`{"san":"Nf3"}`, "Nf3", true},
		{`{}`, "", false},
		{`null`, "", false},
		{`42`, "", false},
	}
	for _, tc := range cases {
		got, err := MoveFromPayload(json.RawMessage(tc.in))
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("MoveFromPayload(%s) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("MoveFromPayload(%s) expected error, got %q", tc.in, got)
		}
	}
}

func TestParseColorAndSideToMove(t *testing.T) {
	if c, ok := ParseColor(" Black "); !ok || c != Black {
		t.Fatalf("ParseColor black failed")
	}
	if _, ok := ParseColor("random"); ok {
		t.Fatalf("random is not a colour")
	}
	if c, ok := SideToMove("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"); !ok || c != Black {
		t.Fatalf("SideToMove failed: %v %v", c, ok)
	}
	if White.Other() != Black || Black.Other() != White {
		t.Fatalf("Other mismatch")
	}
}
