package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/rules"
)

// Status represents a game lifecycle state.
type Status string

const (
	StatusOnGoing  Status = "onGoing"
	StatusFinished Status = "finished"
	StatusDraw     Status = "draw"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameOver         = errors.New("game is already over")
	ErrNotParticipant   = errors.New("user is not a player of this game")
	ErrUnknownQuality   = errors.New("unknown quality label")
	ErrConcurrentUpdate = errors.New("game changed concurrently")
)

// SideCount holds one counter per colour.
type SideCount struct {
	PlayerWhite int `json:"playerWhite"`
	PlayerBlack int `json:"playerBlack"`
}

func (c *SideCount) add(side rules.Color) {
	if side == rules.White {
		c.PlayerWhite++
	} else {
		c.PlayerBlack++
	}
}

// QualityTally counts graded moves per label and colour.
type QualityTally struct {
	Best       SideCount `json:"Best"`
	Good       SideCount `json:"Good"`
	Inaccurate SideCount `json:"Inaccurate"`
	Mistake    SideCount `json:"Mistake"`
	Blunder    SideCount `json:"Blunder"`
}

func (q *QualityTally) bucket(label string) *SideCount {
	switch label {
	case "Best":
		return &q.Best
	case "Good":
		return &q.Good
	case "Inaccurate":
		return &q.Inaccurate
	case "Mistake":
		return &q.Mistake
	case "Blunder":
		return &q.Blunder
	}
	return nil
}

// Game is the persisted record of one contest. Moves fully determine the position.
type Game struct {
	ID          string       `json:"id"`
	PlayerWhite string       `json:"playerWhite"`
	PlayerBlack string       `json:"playerBlack"`
	Moves       []string     `json:"moves"`
	Status      Status       `json:"status"`
	Winner      string       `json:"winner,omitempty"`
	Method      string       `json:"method,omitempty"`
	Quality     QualityTally `json:"quality"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Moves = append([]string{}, g.Moves...)
	return &cp
}

// SideOf returns the colour userID plays in this game.
func (g *Game) SideOf(userID string) (rules.Color, bool) {
	switch strings.TrimSpace(userID) {
	case "":
		return "", false
	case g.PlayerWhite:
		return rules.White, true
	case g.PlayerBlack:
		return rules.Black, true
	}
	return "", false
}

func (g *Game) PlayerOf(side rules.Color) string {
	if side == rules.White {
		return g.PlayerWhite
	}
	return g.PlayerBlack
}

// Opponent returns the other player of userID.
func (g *Game) Opponent(userID string) (string, error) {
	side, ok := g.SideOf(userID)
	if !ok {
		return "", ErrNotParticipant
	}
	return g.PlayerOf(side.Other()), nil
}

func (g *Game) Over() bool { return g.Status != StatusOnGoing }

// Finish ends the game with a winner. Status never leaves a terminal state.
func (g *Game) Finish(winner, method string) error {
	if g.Over() {
		return ErrGameOver
	}
	if winner != g.PlayerWhite && winner != g.PlayerBlack {
		return ErrNotParticipant
	}
	g.Status = StatusFinished
	g.Winner = winner
	g.Method = method
	return nil
}

// Drawn ends the game without a winner.
func (g *Game) Drawn(method string) error {
	if g.Over() {
		return ErrGameOver
	}
	g.Status = StatusDraw
	g.Winner = ""
	g.Method = method
	return nil
}

func (g *Game) AppendMove(notation string) error {
	if g.Over() {
		return ErrGameOver
	}
	g.Moves = append(g.Moves, notation)
	return nil
}

func (g *Game) RecordQuality(label string, side rules.Color) error {
	b := g.Quality.bucket(label)
	if b == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQuality, label)
	}
	b.add(side)
	return nil
}

// Store is the authoritative game record store.
type Store interface {
	Create(ctx context.Context, white, black string) (*Game, error)
	Get(ctx context.Context, id string) (*Game, error)
	// FindOngoing returns the most recent onGoing game between the two users in
	// either colour order, or nil when there is none.
	FindOngoing(ctx context.Context, userA, userB string) (*Game, error)
	// Update applies fn to the current record and commits atomically. Nothing is
	// written when fn returns an error.
	Update(ctx context.Context, id string, fn func(*Game) error) (*Game, error)
	Close() error
}

func newGame(id, white, black string, now time.Time) *Game {
	return &Game{
		ID:          id,
		PlayerWhite: strings.TrimSpace(white),
		PlayerBlack: strings.TrimSpace(black),
		Moves:       []string{},
		Status:      StatusOnGoing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// pairKey is order independent.
func pairKey(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func validPair(white, black string) error {
	white, black = strings.TrimSpace(white), strings.TrimSpace(black)
	if white == "" || black == "" || white == black {
		return fmt.Errorf("invalid participants %q/%q", white, black)
	}
	return nil
}
