package uci

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var errNoLimits = errors.New("no search limits specified")

// positionCommand encodes a position. An empty FEN or "startpos" means the initial position.
func positionCommand(fen string, moves []string) string {
	fields := []string{"position"}
	if fen = strings.TrimSpace(fen); fen == "" || fen == "startpos" {
		fields = append(fields, "startpos")
	} else {
		fields = append(fields, "fen", fen)
	}
	if len(moves) > 0 {
		fields = append(fields, "moves")
		fields = append(fields, moves...)
	}
	return strings.Join(fields, " ")
}

func goCommand(l Limits) (string, error) {
	var b strings.Builder
	b.WriteString("go")
	for _, lim := range []struct {
		name string
		v    int
	}{
		{"depth", l.Depth},
		{"movetime", l.MoveTimeMillis},
		{"nodes", l.NodeCap},
	} {
		if lim.v > 0 {
			b.WriteString(" " + lim.name + " " + strconv.Itoa(lim.v))
		}
	}
	if b.Len() == len("go") {
		return "", errNoLimits
	}
	return b.String(), nil
}

// searchTimeout bounds a search whose caller supplied no deadline.
func searchTimeout(l Limits) time.Duration {
	const (
		floor = 6 * time.Second
		ceil  = 20 * time.Second
	)
	switch {
	case l.MoveTimeMillis > 0:
		return 3 * time.Duration(l.MoveTimeMillis+2000) * time.Millisecond
	case l.Depth > 0:
		return min(max(time.Duration(l.Depth)*300*time.Millisecond, floor), ceil)
	}
	return floor
}

type infoLine struct {
	multipv   int
	depth     int
	score     Score
	principal []string
}

// parseInfo reads depth, multipv, score and pv from an info line. Lines without a score
// (currmove, string) report false.
func parseInfo(line string) (infoLine, bool) {
	tok := strings.Fields(line)
	out := infoLine{multipv: 1}
	scored := false
	intAt := func(i int) (int, bool) {
		if i >= len(tok) {
			return 0, false
		}
		v, err := strconv.Atoi(tok[i])
		return v, err == nil
	}

	for i := 1; i < len(tok); i++ {
		switch tok[i] {
		case "string":
			return infoLine{}, false
		case "multipv":
			if v, ok := intAt(i + 1); ok {
				out.multipv = v
			}
			i++
		case "depth":
			if v, ok := intAt(i + 1); ok {
				out.depth = v
			}
			i++
		case "score":
			if i+1 >= len(tok) {
				break
			}
			v, ok := intAt(i + 2)
			switch {
			case ok && tok[i+1] == "cp":
				out.score, scored = Score{Centipawns: v}, true
			case ok && tok[i+1] == "mate":
				out.score, scored = mateScore(v), true
			}
			i += 2
		case "pv":
			out.principal = append([]string(nil), tok[i+1:]...)
			i = len(tok)
		}
	}
	return out, scored
}

// mateScore clamps "mate N" to the sentinel. "mate 0" means the side to move is mated.
func mateScore(n int) Score {
	s := Score{Centipawns: MateScore, Mate: n, IsMate: true}
	if n <= 0 {
		s.Centipawns = -MateScore
	}
	return s
}

// bestMove returns the move of a "bestmove" line, or "" for "(none)".
func bestMove(line string) string {
	tok := strings.Fields(line)
	if len(tok) < 2 || tok[1] == "(none)" {
		return ""
	}
	return tok[1]
}
