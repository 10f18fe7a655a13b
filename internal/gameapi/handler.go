// Package gameapi serves read-only views of a stored game to its players.
package gameapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/boardimg"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/store"
)

const renderTimeout = 5 * time.Second

type Handler struct {
	store    store.Store
	resolver identity.Resolver
	log      *zap.Logger
	mux      *http.ServeMux
}

// New builds the handler. With a nil resolver every game is readable.
func New(s store.Store, resolver identity.Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{store: s, resolver: resolver, log: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/games/{id}", h.getGame)
	h.mux.HandleFunc("GET /api/games/{id}/board.png", h.getBoard)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

type GameView struct {
	*store.Game
	FEN  string      `json:"fen"`
	Turn rules.Color `json:"turn"`
}

func (h *Handler) getGame(w http.ResponseWriter, r *http.Request) {
	g, pos, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GameView{Game: g, FEN: pos.FEN(), Turn: pos.Turn()})
}

func (h *Handler) getBoard(w http.ResponseWriter, r *http.Request) {
	g, pos, ok := h.load(w, r)
	if !ok {
		return
	}
	opts := boardimg.Options{
		Flip:    strings.EqualFold(r.URL.Query().Get("perspective"), "black"),
		Caption: g.PlayerWhite + " vs " + g.PlayerBlack,
	}
	if from, to, ok := pos.LastMove(); ok {
		opts.Highlight = &boardimg.Highlight{From: from, To: to}
	}
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()
	data, err := boardimg.RenderPNG(ctx, pos.FEN(), opts)
	if err != nil {
		h.log.Error("board_render_failed", zap.String("game_id", g.ID), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// load fetches and replays the game after checking the caller may see it.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*store.Game, *rules.Position, bool) {
	g, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrGameNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		h.log.Error("game_load_failed", zap.String("game_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return nil, nil, false
	}
	if h.resolver != nil {
		userID, err := h.resolver.Resolve(r.Context(), tokenFrom(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return nil, nil, false
		}
		if _, ok := g.SideOf(userID); !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return nil, nil, false
		}
	}
	pos, err := rules.Replay(g.Moves)
	if err != nil {
		h.log.Error("game_replay_failed", zap.String("game_id", g.ID), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return nil, nil, false
	}
	return g, pos, true
}

func tokenFrom(r *http.Request) string {
	if ck, err := r.Cookie("token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
