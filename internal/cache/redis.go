package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// RedisStore keeps one JSON value per key so it can be shared between the
// CLI and the watcher.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// ConnectRedis parses url, pings the server and returns the client.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore wraps rdb. A zero ttl keeps entries forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func lastCreatedKey(chainID uint64) string {
	return fmt.Sprintf("basefair:last-created:%d", chainID)
}

// updateAttempts bounds optimistic retries when another writer touches the
// key between WATCH and EXEC.
const updateAttempts = 5

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) Load(ctx context.Context, key Key) ([]game.Game, error) {
	return load(ctx, r.rdb, key)
}

func load(ctx context.Context, g getter, key Key) ([]game.Game, error) {
	blob, err := g.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var games []game.Game
	if err := json.Unmarshal(blob, &games); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return games, nil
}

func encode(key Key, games []game.Game) ([]byte, error) {
	if games == nil {
		games = []game.Game{}
	}
	blob, err := json.Marshal(games)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return blob, nil
}

func (r *RedisStore) Save(ctx context.Context, key Key, games []game.Game) error {
	blob, err := encode(key, games)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key.String(), blob, r.ttl).Err()
}

// Update watches the key and writes inside MULTI/EXEC, retrying when a
// concurrent writer got there first.
func (r *RedisStore) Update(ctx context.Context, key Key, fn func([]game.Game) []game.Game) ([]game.Game, error) {
	var games []game.Game
	txf := func(tx *redis.Tx) error {
		stored, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		games = fn(stored)
		blob, err := encode(key, games)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key.String(), blob, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < updateAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, key.String())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return games, nil
	}
	return nil, fmt.Errorf("update %s: key kept changing", key)
}

func (r *RedisStore) SaveLastCreated(ctx context.Context, rec LastCreated) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, lastCreatedKey(rec.ChainID), blob, 0).Err()
}

func (r *RedisStore) LastCreated(ctx context.Context, chainID uint64) (LastCreated, bool, error) {
	blob, err := r.rdb.Get(ctx, lastCreatedKey(chainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return LastCreated{}, false, nil
	}
	if err != nil {
		return LastCreated{}, false, fmt.Errorf("load last created game: %w", err)
	}
	var rec LastCreated
	if err := json.Unmarshal(blob, &rec); err != nil {
		return LastCreated{}, false, fmt.Errorf("decode last created game: %w", err)
	}
	return rec, true, nil
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
