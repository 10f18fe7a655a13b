package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposite side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return "", false
}

// coordinateMove matches UCI long algebraic input; such input is never reinterpreted as SAN.
var coordinateMove = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrCorruptRecord = errors.New("stored move list cannot be replayed")
)

// Applied describes a move accepted by Apply.
type Applied struct {
	Color     Color  `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	SAN       string `json:"san"`
	UCI       string `json:"lan"`
	Promotion string `json:"promotion,omitempty"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

// Outcome reports whether a position is terminal.
type Outcome struct {
	Over   bool
	Draw   bool
	Winner Color
	Method string
}

// Position is a game replayed from the initial position.
type Position struct {
	game *nchess.Game
	sans []string
}

// Replay rebuilds the position from a stored move list. Entries are SAN; UCI is accepted too.
func Replay(moves []string) (*Position, error) {
	p := &Position{game: nchess.NewGame()}
	for i, mv := range moves {
		if _, err := p.Apply(mv); err != nil {
			return nil, fmt.Errorf("%w: ply %d %q", ErrCorruptRecord, i+1, mv)
		}
	}
	return p, nil
}

func (p *Position) FEN() string { return p.game.FEN() }

// Turn returns the side to move.
func (p *Position) Turn() Color { return colorFrom(p.game.Position().Turn()) }

// Moves returns the SAN list played so far.
func (p *Position) Moves() []string { return append([]string(nil), p.sans...) }

// LastMove returns the squares of the most recent move.
func (p *Position) LastMove() (from, to string, ok bool) {
	mv := p.lastMove()
	if mv == nil {
		return "", "", false
	}
	return mv.S1().String(), mv.S2().String(), true
}

// Apply plays one move given as UCI (e2e4, e7e8q) or SAN (e4, Nf3).
func (p *Position) Apply(move string) (Applied, error) {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return Applied{}, ErrIllegalMove
	}
	if p.Outcome().Over {
		return Applied{}, ErrIllegalMove
	}
	pos := p.game.Position()
	before := p.game.FEN()
	mover := colorFrom(pos.Turn())
	if lower := strings.ToLower(raw); coordinateMove.MatchString(lower) {
		if err := p.game.PushNotationMove(lower, nchess.UCINotation{}, nil); err != nil {
			return Applied{}, ErrIllegalMove
		}
	} else if err := p.pushSAN(pos, raw); err != nil {
		return Applied{}, err
	}
	mv := p.lastMove()
	if mv == nil {
		return Applied{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	uci := mv.String()
	p.sans = append(p.sans, san)
	p.claimDraw()

	a := Applied{
		Color:  mover,
		From:   mv.S1().String(),
		To:     mv.S2().String(),
		SAN:    san,
		UCI:    uci,
		Before: before,
		After:  p.game.FEN(),
	}
	if len(uci) == 5 {
		a.Promotion = uci[4:]
	}
	return a, nil
}

// pushSAN decodes raw as SAN against pos and plays it only when the decoded move lands on
// the destination square raw names. The decoder is lenient and may otherwise pick another move.
func (p *Position) pushSAN(pos *nchess.Position, raw string) error {
	mv, err := nchess.AlgebraicNotation{}.Decode(pos, raw)
	if err != nil || mv == nil {
		return ErrIllegalMove
	}
	if dst := sanDestination(raw); dst != "" && dst != mv.S2().String() {
		return ErrIllegalMove
	}
	if err := p.game.Move(mv, nil); err != nil {
		return ErrIllegalMove
	}
	return nil
}

// sanDestination returns the last square named in a SAN string, or "" for castling.
func sanDestination(san string) string {
	dst := ""
	for i := 0; i+1 < len(san); i++ {
		if san[i] >= 'a' && san[i] <= 'h' && san[i+1] >= '1' && san[i+1] <= '8' {
			dst = san[i : i+2]
		}
	}
	return dst
}

// Outcome inspects the current position.
func (p *Position) Outcome() Outcome {
	method := methodName(p.game.Method())
	switch p.game.Outcome() {
	case nchess.WhiteWon:
		return Outcome{Over: true, Winner: White, Method: method}
	case nchess.BlackWon:
		return Outcome{Over: true, Winner: Black, Method: method}
	case nchess.Draw:
		return Outcome{Over: true, Draw: true, Method: method}
	}
	return Outcome{}
}

// claimDraw ends the game on threefold repetition or the fifty-move rule, which the
// library only offers as claims.
func (p *Position) claimDraw() {
	if p.game.Outcome() != nchess.NoOutcome {
		return
	}
	for _, m := range p.game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			_ = p.game.Draw(m)
			return
		}
	}
}

func (p *Position) lastMove() *nchess.Move {
	moves := p.game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.NoMethod:
		return ""
	}
	return strings.ToLower(m.String())
}

// SideToMove reads the active colour field of a FEN string.
func SideToMove(fen string) (Color, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", false
	}
	return ParseColor(fields[1])
}
