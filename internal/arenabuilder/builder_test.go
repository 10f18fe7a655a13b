package arenabuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/store"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Port:             0,
		StockfishPath:    "definitely-not-a-chess-engine",
		AnalysisMode:     config.AnalysisModeSpawn,
		AnalysisDepth:    8,
		AnalysisTimeout:  time.Second,
		AnalysisPoolSize: 2,
		EngineThreads:    1,
		EngineHashMB:     16,
	}
}

func TestNew_RedisStoreAndPoolFallback(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	cfg := testConfig()
	cfg.RedisURL = fmt.Sprintf("redis://%s/0", mr.Addr())
	cfg.AnalysisMode = config.AnalysisModePool

	deps, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Store.(*store.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", deps.Store)
	}
	if deps.Archive != nil {
		t.Fatalf("archive should be disabled without DATABASE_URL")
	}
	g, err := deps.Store.Create(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("arena:game:" + g.ID) {
		t.Fatalf("game not written to redis")
	}
}

func TestNew_RejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}

func TestBuildResolver_Preference(t *testing.T) {
	cfg := testConfig()
	if r, err := buildResolver(cfg); err != nil || r != nil {
		t.Fatalf("no identity config should yield nil resolver: %v %v", r, err)
	}
	cfg.JWTSecret = "secret"
	r, err := buildResolver(cfg)
	if err != nil || fmt.Sprintf("%T", r) != "*identity.TokenResolver" {
		t.Fatalf("expected token resolver, got %T %v", r, err)
	}
	cfg.AuthServiceURL = "http://auth.local"
	r, _ = buildResolver(cfg)
	if fmt.Sprintf("%T", r) != "*identity.RemoteResolver" {
		t.Fatalf("expected remote resolver, got %T", r)
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads frames until one named event arrives.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	for {
		var f frame
		if err := wsjson.Read(ctx, c, &f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f.Data
		}
	}
}

func TestEndToEnd_TwoPlayersAndAMove(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deps, err := New(ctx, testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Close()
	srv := httptest.NewServer(deps.Handler)
	defer srv.Close()

	dial := func() *websocket.Conn {
		c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		readUntil(t, ctx, c, "connected")
		return c
	}
	alice, bob := dial(), dial()
	defer alice.Close(websocket.StatusNormalClosure, "")
	defer bob.Close(websocket.StatusNormalClosure, "")

	send := func(c *websocket.Conn, event string, data any) {
		if err := wsjson.Write(ctx, c, map[string]any{"event": event, "data": data}); err != nil {
			t.Fatalf("write %s: %v", event, err)
		}
	}
	send(alice, "joinRoom", map[string]string{"userId": "alice", "roomId": "r1", "color": "white"})
	readUntil(t, ctx, alice, "assignedColor")
	send(bob, "joinRoom", map[string]string{"userId": "bob", "roomId": "r1"})

	var start struct {
		GameID string `json:"gameId"`
		Color  string `json:"color"`
	}
	_ = json.Unmarshal(readUntil(t, ctx, alice, "bothPlayersJoined"), &start)
	if start.GameID == "" || start.Color != "white" {
		t.Fatalf("alice start = %+v", start)
	}
	readUntil(t, ctx, bob, "bothPlayersJoined")

	send(alice, "SendMove", map[string]any{"move": "e2e4", "gameId": start.GameID, "userId": "alice", "roomId": "r1"})
	var got struct {
		FEN      string   `json:"fen"`
		AllMoves []string `json:"allMoves"`
	}
	_ = json.Unmarshal(readUntil(t, ctx, bob, "receiveMove"), &got)
	if len(got.AllMoves) != 1 || got.AllMoves[0] != "e4" || !strings.Contains(got.FEN, " b ") {
		t.Fatalf("receiveMove = %+v", got)
	}

	g, err := deps.Store.Get(ctx, start.GameID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(g.Moves) != 1 || g.Quality != (store.QualityTally{}) {
		t.Fatalf("move should commit without a verdict when no engine is installed: %+v", g)
	}
}
