package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS arena_games (
    game_id         TEXT PRIMARY KEY,
    white_id        TEXT NOT NULL,
    black_id        TEXT NOT NULL,
    status          TEXT NOT NULL,
    winner_id       TEXT,
    result          TEXT NOT NULL,
    result_method   TEXT,
    moves_san       JSONB NOT NULL,
    pgn             TEXT NOT NULL,
    quality         JSONB NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    ended_at        TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL
)`

// Repository archives finished games to Postgres.
type Repository struct {
	db   *sql.DB
	exec execer
}

// execer is the part of *sql.DB the repository writes through.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db, exec: db}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.exec == nil {
		return nil
	}
	if _, err := r.exec.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure arena_games: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished or drawn game. Ongoing games are ignored.
func (r *Repository) SaveResult(ctx context.Context, g *store.Game) error {
	if r == nil || r.exec == nil || g == nil || !g.Over() {
		return nil
	}

	token := ResultToken(g)
	pgn := BuildPGN(g)
	movesRaw, err := json.Marshal(g.Moves)
	if err != nil {
		return err
	}
	qualityRaw, err := json.Marshal(g.Quality)
	if err != nil {
		return err
	}
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	var winner sql.NullString
	if g.Winner != "" {
		winner = sql.NullString{String: g.Winner, Valid: true}
	}

	const q = `INSERT INTO arena_games (
        game_id, white_id, black_id, status, winner_id,
        result, result_method, moves_san, pgn, quality,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (game_id) DO UPDATE SET
        status=EXCLUDED.status,
        winner_id=EXCLUDED.winner_id,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        quality=EXCLUDED.quality,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.exec.ExecContext(ctx, q,
		g.ID, g.PlayerWhite, g.PlayerBlack, string(g.Status), winner,
		token, strings.TrimSpace(g.Method), string(movesRaw), pgn, string(qualityRaw),
		g.CreatedAt, g.UpdatedAt, duration,
	)
	return err
}

// ResultToken maps a game to its PGN result.
func ResultToken(g *store.Game) string {
	switch {
	case g == nil:
		return "*"
	case g.Status == store.StatusDraw:
		return "1/2-1/2"
	case g.Status != store.StatusFinished:
		return "*"
	case g.Winner == g.PlayerWhite:
		return "1-0"
	case g.Winner == g.PlayerBlack:
		return "0-1"
	}
	return "*"
}

// BuildPGN renders the stored SAN moves with the seven-tag roster subset the arena knows.
func BuildPGN(g *store.Game) string {
	if g == nil {
		return ""
	}
	result := ResultToken(g)
	played := g.UpdatedAt
	if played.IsZero() {
		played = time.Now()
	}

	var b strings.Builder
	tag := func(name, value string) { fmt.Fprintf(&b, "[%s \"%s\"]\n", name, pgnEscaper.Replace(value)) }
	tag("Event", "Cheese Arena")
	tag("Site", "cheese-arena")
	tag("Date", played.Format("2006.01.02"))
	tag("White", strings.TrimSpace(g.PlayerWhite))
	tag("Black", strings.TrimSpace(g.PlayerBlack))
	if m := strings.TrimSpace(g.Method); m != "" {
		tag("Termination", strings.ToLower(m))
	}
	tag("Result", result)
	b.WriteByte('\n')

	for i, san := range g.Moves {
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		b.WriteString(strings.TrimSpace(san))
		b.WriteByte(' ')
	}
	b.WriteString(result)
	return b.String()
}

var pgnEscaper = strings.NewReplacer(`\`, " ", `"`, "'")
