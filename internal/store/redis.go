package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 3

// RedisStore keeps each game as JSON under arena:game:<id> with a set index per player pair.
// Records carry no TTL.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.ClientName = "cheese-arena"
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, now: time.Now}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) Create(ctx context.Context, white, black string) (*Game, error) {
	if err := validPair(white, black); err != nil {
		return nil, err
	}
	g := newGame(uuid.NewString(), white, black, s.now())
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(g.ID), raw, 0)
	pipe.SAdd(ctx, pairIndexKey(white, black), g.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Game, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrGameNotFound
	}
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeGame(raw)
}

func (s *RedisStore) FindOngoing(ctx context.Context, userA, userB string) (*Game, error) {
	ids, err := s.rdb.SMembers(ctx, pairIndexKey(userA, userB)).Result()
	if err != nil {
		return nil, err
	}
	var found *Game
	for _, id := range ids {
		g, gerr := s.Get(ctx, id)
		if errors.Is(gerr, ErrGameNotFound) {
			continue
		}
		if gerr != nil {
			return nil, gerr
		}
		if g.Status != StatusOnGoing {
			continue
		}
		if found == nil || g.UpdatedAt.After(found.UpdatedAt) {
			found = g
		}
	}
	return found, nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer commits first.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Game) error) (*Game, error) {
	key := gameKey(id)
	var out *Game
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeGame(raw)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.UpdatedAt = s.now()
		next, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = cur
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConcurrentUpdate
}

func decodeGame(raw []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	if g.Moves == nil {
		g.Moves = []string{}
	}
	return &g, nil
}

func gameKey(id string) string { return "arena:game:" + strings.TrimSpace(id) }
func pairIndexKey(a, b string) string { return "arena:pair:" + pairKey(a, b) }
