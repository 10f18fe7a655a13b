package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/analysis"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/store"
)

// Notifier delivers one event to one connection. Delivery is best effort.
type Notifier interface {
	Emit(connID, event string, payload any)
}

// MoveAnalyzer grades a move from the positions before and after it.
type MoveAnalyzer interface {
	AnalyzeMove(ctx context.Context, beforeFEN, afterFEN string) (analysis.Verdict, error)
}

// Archiver receives games once they reach a terminal status.
type Archiver interface {
	SaveResult(ctx context.Context, g *store.Game) error
}

type Options struct {
	Store    store.Store
	Notifier Notifier
	Analyzer MoveAnalyzer
	Archive  Archiver
	Catalog  *msgcat.Catalog
	Logger   *zap.Logger
	Registry *Registry
	Now      func() time.Time
}

// Coordinator owns the room registry and runs every room and game operation.
type Coordinator struct {
	registry *Registry
	store    store.Store
	notify   Notifier
	analyzer MoveAnalyzer
	archive  Archiver
	catalog  *msgcat.Catalog
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	rooms *keyedMutex
	games *keyedMutex
	pairs *keyedMutex

	idMu       sync.RWMutex
	identities map[string]string
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("arena: store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("arena: notifier is required")
	}
	c := &Coordinator{
		registry:   opts.Registry,
		store:      opts.Store,
		notify:     opts.Notifier,
		analyzer:   opts.Analyzer,
		archive:    opts.Archive,
		catalog:    opts.Catalog,
		log:        opts.Logger,
		validate:   newValidator(),
		now:        opts.Now,
		rooms:      newKeyedMutex(),
		games:      newKeyedMutex(),
		pairs:      newKeyedMutex(),
		identities: make(map[string]string),
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.catalog == nil {
		c.catalog = msgcat.MustDefault()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// Bind records the identity verified for a connection at handshake time.
func (c *Coordinator) Bind(connID, userID string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	c.idMu.Lock()
	c.identities[connID] = userID
	c.idMu.Unlock()
}

func (c *Coordinator) checkIdentity(connID, userID string) error {
	c.idMu.RLock()
	bound, ok := c.identities[connID]
	c.idMu.RUnlock()
	if ok && bound != strings.TrimSpace(userID) {
		return ErrIdentityMismatch
	}
	return nil
}

// participant returns the connection's seat and checks that it acts as its own user.
func (c *Coordinator) participant(connID, userID string) (Participant, string, error) {
	p, roomID, ok := c.registry.Participant(connID)
	if !ok {
		return Participant{}, "", ErrNotInRoom
	}
	if userID != "" && strings.TrimSpace(userID) != p.UserID {
		return Participant{}, "", ErrIdentityMismatch
	}
	return p, roomID, nil
}

// Join seats a connection. Once the room holds two players the game is resumed or created
// and both players receive its state.
func (c *Coordinator) Join(ctx context.Context, connID string, req JoinRequest) error {
	if err := c.checkIdentity(connID, req.UserID); err != nil {
		return err
	}
	unlock := c.rooms.Lock(strings.TrimSpace(req.RoomID))
	defer unlock()

	res, err := c.registry.Join(req.RoomID, req.UserID, connID, req.Color)
	if err != nil {
		return err
	}
	c.log.Info("arena_join",
		zap.String("room_id", res.RoomID),
		zap.String("user_id", res.Joined.UserID),
		zap.String("conn_id", connID),
		zap.String("color", string(res.Joined.Color)),
		zap.Int("occupants", len(res.Occupants)))

	if !res.Full() {
		c.notify.Emit(connID, OutAssignedColor, res.Joined.Color)
		return nil
	}

	game, err := c.resolveGame(ctx, res.Occupants)
	if err != nil {
		c.registry.Leave(connID)
		c.log.Error("arena_game_resolve_failed", zap.String("room_id", res.RoomID), zap.Error(err))
		text := notice(c.catalog, err)
		for _, p := range res.Others() {
			c.notify.Emit(p.ConnID, OutErrorMessage, text)
		}
		return err
	}
	pos, err := rules.Replay(game.Moves)
	if err != nil {
		c.registry.Leave(connID)
		c.log.Error("arena_replay_failed", zap.String("game_id", game.ID), zap.Error(err))
		text := notice(c.catalog, err)
		for _, p := range res.Others() {
			c.notify.Emit(p.ConnID, OutErrorMessage, text)
		}
		return err
	}

	occupants := c.alignColors(res, game)
	var joined Participant
	for _, p := range occupants {
		if p.ConnID == connID {
			joined = p
		}
	}
	c.notify.Emit(connID, OutAssignedColor, joined.Color)
	for _, p := range without(occupants, connID) {
		c.notify.Emit(p.ConnID, OutPlayerJoined, PlayerJoinedPayload{
			Message:  fmt.Sprintf("%s joined as %s", joined.UserID, joined.Color),
			UserID:   joined.UserID,
			SocketID: joined.ConnID,
			Color:    joined.Color,
		})
	}

	for _, p := range occupants {
		opp := without(occupants, p.ConnID)
		if len(opp) != 1 {
			continue
		}
		c.notify.Emit(p.ConnID, OutBothPlayersJoined, BothPlayersJoinedPayload{
			GameID:           game.ID,
			Moves:            append([]string{}, game.Moves...),
			FEN:              pos.FEN(),
			Color:            p.Color,
			OpponentSocketID: opp[0].ConnID,
			OpponentUserID:   opp[0].UserID,
			OpponentColor:    opp[0].Color,
			InitiateCall:     p.ConnID != connID,
		})
	}
	c.log.Info("arena_game_start",
		zap.String("room_id", res.RoomID),
		zap.String("game_id", game.ID),
		zap.Int("moves", len(game.Moves)))
	return nil
}

// resolveGame resumes the pair's ongoing game in either colour order or creates a new one.
func (c *Coordinator) resolveGame(ctx context.Context, occupants []Participant) (*store.Game, error) {
	var white, black string
	for _, p := range occupants {
		if p.Color == rules.White {
			white = p.UserID
		} else {
			black = p.UserID
		}
	}
	unlock := c.pairs.Lock(pairLockKey(white, black))
	defer unlock()

	g, err := c.store.FindOngoing(ctx, white, black)
	if err != nil {
		return nil, fmt.Errorf("find ongoing game: %w", err)
	}
	if g != nil {
		c.log.Info("arena_game_resume", zap.String("game_id", g.ID))
		return g, nil
	}
	g, err = c.store.Create(ctx, white, black)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	c.log.Info("arena_game_create", zap.String("game_id", g.ID), zap.String("white", white), zap.String("black", black))
	return g, nil
}

// alignColors makes room colours follow the game record. Players whose colour changes
// and who were already seated get a fresh assignedColor.
func (c *Coordinator) alignColors(res JoinResult, g *store.Game) []Participant {
	colors := map[string]rules.Color{
		g.PlayerWhite: rules.White,
		g.PlayerBlack: rules.Black,
	}
	changed := false
	for _, p := range res.Occupants {
		if want, ok := colors[p.UserID]; ok && want != p.Color {
			changed = true
		}
	}
	if !changed {
		return res.Occupants
	}
	occupants := c.registry.Reassign(res.RoomID, colors)
	for _, p := range occupants {
		if p.ConnID != res.Joined.ConnID {
			c.notify.Emit(p.ConnID, OutAssignedColor, p.Color)
		}
	}
	c.log.Info("arena_colors_aligned", zap.String("room_id", res.RoomID), zap.String("game_id", g.ID))
	return occupants
}

// SubmitMove validates a move against the replayed position, grades it and commits it.
// The work is detached from the caller's cancellation so a disconnect cannot abort it.
func (c *Coordinator) SubmitMove(ctx context.Context, connID string, req MoveRequest) error {
	ctx = context.WithoutCancel(ctx)
	p, roomID, err := c.participant(connID, req.UserID)
	if err != nil {
		return err
	}
	move, err := rules.MoveFromPayload(req.Move)
	if err != nil {
		return err
	}

	unlock := c.games.Lock(req.GameID)
	defer unlock()

	g, err := c.store.Get(ctx, req.GameID)
	if err != nil {
		return err
	}
	if g.Over() {
		return store.ErrGameOver
	}
	side, ok := g.SideOf(p.UserID)
	if !ok {
		return store.ErrNotParticipant
	}
	pos, err := rules.Replay(g.Moves)
	if err != nil {
		return fmt.Errorf("replay game %s: %w", g.ID, err)
	}
	if pos.Turn() != side {
		return ErrNotYourTurn
	}
	applied, err := pos.Apply(move)
	if err != nil {
		return err
	}

	verdict, graded := c.grade(ctx, g.ID, applied)
	outcome := pos.Outcome()
	base := len(g.Moves)

	updated, err := c.store.Update(ctx, g.ID, func(cur *store.Game) error {
		if cur.Over() {
			return store.ErrGameOver
		}
		if len(cur.Moves) != base {
			return store.ErrConcurrentUpdate
		}
		if err := cur.AppendMove(applied.SAN); err != nil {
			return err
		}
		if graded {
			if err := cur.RecordQuality(string(verdict.Quality), side); err != nil {
				return err
			}
		}
		switch {
		case outcome.Over && outcome.Draw:
			return cur.Drawn(outcome.Method)
		case outcome.Over:
			return cur.Finish(cur.PlayerOf(outcome.Winner), outcome.Method)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist move: %w", err)
	}

	c.log.Info("arena_move",
		zap.String("game_id", updated.ID),
		zap.String("user_id", p.UserID),
		zap.String("san", applied.SAN),
		zap.Int("ply", len(updated.Moves)),
		zap.String("status", string(updated.Status)))

	payload := ReceiveMovePayload{
		Move:       movePayload(applied),
		FEN:        pos.FEN(),
		GameStatus: string(updated.Status),
		Winner:     winnerOf(updated),
		AllMoves:   append([]string{}, updated.Moves...),
	}
	c.broadcast(roomID, connID, OutReceiveMove, payload)
	c.archiveIfOver(ctx, updated)
	return nil
}

// grade runs the analyzer. Failures are logged and produce no verdict.
func (c *Coordinator) grade(ctx context.Context, gameID string, a rules.Applied) (analysis.Verdict, bool) {
	if c.analyzer == nil {
		return analysis.Verdict{}, false
	}
	v, err := c.analyzer.AnalyzeMove(ctx, a.Before, a.After)
	if err != nil {
		c.log.Warn("analysis_failed", zap.String("game_id", gameID), zap.String("san", a.SAN), zap.Error(err))
		return analysis.Verdict{}, false
	}
	c.log.Debug("analysis_verdict",
		zap.String("game_id", gameID),
		zap.String("san", a.SAN),
		zap.String("quality", string(v.Quality)),
		zap.Int("loss", v.Loss))
	return v, true
}

// Resign ends the game in favour of the resigning player's opponent.
func (c *Coordinator) Resign(ctx context.Context, connID string, req ResignRequest) error {
	p, roomID, err := c.participant(connID, req.UserID)
	if err != nil {
		return err
	}
	unlock := c.games.Lock(req.GameID)
	defer unlock()

	updated, err := c.store.Update(ctx, req.GameID, func(cur *store.Game) error {
		opp, err := cur.Opponent(p.UserID)
		if err != nil {
			return err
		}
		return cur.Finish(opp, "resignation")
	})
	if err != nil {
		return err
	}
	c.log.Info("arena_resign", zap.String("game_id", updated.ID), zap.String("user_id", p.UserID), zap.String("winner", updated.Winner))
	c.broadcast(roomID, connID, OutOpponentResign, ResignPayload{GameID: updated.ID, Winner: updated.Winner})
	c.archiveIfOver(ctx, updated)
	return nil
}

// OfferDraw and DeclineDraw only notify the opponent.
func (c *Coordinator) OfferDraw(connID string) error {
	return c.relayToRoom(connID, OutOpponentDraw, nil)
}

func (c *Coordinator) DeclineDraw(connID string) error {
	return c.relayToRoom(connID, OutDrawDeclined, nil)
}

// AcceptDraw records the agreed draw.
func (c *Coordinator) AcceptDraw(ctx context.Context, connID string, req DrawAcceptRequest) error {
	p, roomID, err := c.participant(connID, "")
	if err != nil {
		return err
	}
	unlock := c.games.Lock(req.GameID)
	defer unlock()

	updated, err := c.store.Update(ctx, req.GameID, func(cur *store.Game) error {
		if _, ok := cur.SideOf(p.UserID); !ok {
			return store.ErrNotParticipant
		}
		return cur.Drawn("agreement")
	})
	if err != nil {
		return err
	}
	c.log.Info("arena_draw", zap.String("game_id", updated.ID), zap.String("user_id", p.UserID))
	c.broadcast(roomID, connID, OutDrawAccepted, map[string]string{"gameId": updated.ID})
	c.archiveIfOver(ctx, updated)
	return nil
}

// SendMessage forwards a chat line to the rest of the room.
func (c *Coordinator) SendMessage(connID string, req MessageRequest) error {
	return c.relayToRoom(connID, OutReceiveMessage, ChatPayload{
		Message: req.Message,
		Time:    c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// Disconnect frees the connection's seat and tells the remaining player. Games are untouched.
func (c *Coordinator) Disconnect(connID string) {
	c.idMu.Lock()
	delete(c.identities, connID)
	c.idMu.Unlock()

	roomID, ok := c.registry.RoomOf(connID)
	if !ok {
		return
	}
	unlock := c.rooms.Lock(roomID)
	defer unlock()

	roomID, left, remaining, ok := c.registry.Leave(connID)
	if !ok {
		return
	}
	c.log.Info("arena_leave",
		zap.String("room_id", roomID),
		zap.String("user_id", left.UserID),
		zap.String("conn_id", connID),
		zap.Int("remaining", len(remaining)))
	for _, p := range remaining {
		c.notify.Emit(p.ConnID, OutOpponentDisconnected, DisconnectPayload{SocketID: connID, UserID: left.UserID})
	}
}

func (c *Coordinator) relayToRoom(connID, event string, payload any) error {
	_, roomID, err := c.participant(connID, "")
	if err != nil {
		return err
	}
	c.broadcast(roomID, connID, event, payload)
	return nil
}

// broadcast emits to every occupant of roomID except the sender.
func (c *Coordinator) broadcast(roomID, senderConn, event string, payload any) {
	for _, p := range c.registry.Occupants(roomID) {
		if p.ConnID == senderConn {
			continue
		}
		c.notify.Emit(p.ConnID, event, payload)
	}
}

func (c *Coordinator) archiveIfOver(ctx context.Context, g *store.Game) {
	if c.archive == nil || g == nil || !g.Over() {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.archive.SaveResult(actx, g); err != nil {
		c.log.Error("arena_archive_failed", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	c.log.Info("arena_archived", zap.String("game_id", g.ID), zap.String("status", string(g.Status)))
}

func winnerOf(g *store.Game) *string {
	if g.Status != store.StatusFinished || g.Winner == "" {
		return nil
	}
	w := g.Winner
	return &w
}

func pairLockKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
