package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS game_cache (
		chain_id   BIGINT NOT NULL,
		player     TEXT   NOT NULL,
		games      TEXT   NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (chain_id, player)
	)`,
	`CREATE TABLE IF NOT EXISTS last_created (
		chain_id   BIGINT PRIMARY KEY,
		game_id    BIGINT  NOT NULL,
		created_at BIGINT  NOT NULL,
		tx_hash    TEXT    NOT NULL DEFAULT '',
		unresolved BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// SQLStore keeps entries in sqlite or postgres, one row per key holding the
// JSON-encoded game list.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL connects with driver ("sqlite3" or "postgres") and creates the
// tables when missing.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s cache: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create cache schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, key Key) ([]game.Game, error) {
	return s.load(ctx, s.db, key, "")
}

func (s *SQLStore) load(ctx context.Context, q sqlx.QueryerContext, key Key, suffix string) ([]game.Game, error) {
	var blob string
	err := sqlx.GetContext(ctx, q, &blob, s.db.Rebind(`SELECT games FROM game_cache WHERE chain_id = ? AND player = ?`+suffix), key.ChainID, key.PlayerHex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var games []game.Game
	if err := json.Unmarshal([]byte(blob), &games); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return games, nil
}

func (s *SQLStore) Save(ctx context.Context, key Key, games []game.Game) error {
	return s.save(ctx, s.db, key, games)
}

func (s *SQLStore) save(ctx context.Context, e sqlx.ExecerContext, key Key, games []game.Game) error {
	if games == nil {
		games = []game.Game{}
	}
	blob, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	q := s.db.Rebind(`INSERT INTO game_cache (chain_id, player, games, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (chain_id, player) DO UPDATE SET games = excluded.games, updated_at = excluded.updated_at`)
	if _, err := e.ExecContext(ctx, q, key.ChainID, key.PlayerHex(), string(blob), time.Now().Unix()); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Update runs the read and the write in one transaction. On postgres the
// row is created first so FOR UPDATE has something to lock; sqlite is
// already serialised by its single connection.
func (s *SQLStore) Update(ctx context.Context, key Key, fn func([]game.Game) []game.Game) ([]game.Game, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update %s: %w", key, err)
	}
	defer tx.Rollback()

	suffix := ""
	if s.db.DriverName() == "postgres" {
		suffix = " FOR UPDATE"
		q := s.db.Rebind(`INSERT INTO game_cache (chain_id, player, games, updated_at) VALUES (?, ?, '[]', ?)
			ON CONFLICT (chain_id, player) DO NOTHING`)
		if _, err := tx.ExecContext(ctx, q, key.ChainID, key.PlayerHex(), time.Now().Unix()); err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
	}
	stored, err := s.load(ctx, tx, key, suffix)
	if err != nil {
		return nil, err
	}
	games := fn(stored)
	if err := s.save(ctx, tx, key, games); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", key, err)
	}
	return games, nil
}

func (s *SQLStore) SaveLastCreated(ctx context.Context, rec LastCreated) error {
	q := s.db.Rebind(`INSERT INTO last_created (chain_id, game_id, created_at, tx_hash, unresolved) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET game_id = excluded.game_id, created_at = excluded.created_at,
		tx_hash = excluded.tx_hash, unresolved = excluded.unresolved`)
	var txHash string
	if rec.TxHash != (common.Hash{}) {
		txHash = rec.TxHash.Hex()
	}
	if _, err := s.db.ExecContext(ctx, q, rec.ChainID, rec.GameID, rec.Timestamp.UnixMilli(), txHash, rec.Unresolved); err != nil {
		return fmt.Errorf("save last created game: %w", err)
	}
	return nil
}

func (s *SQLStore) LastCreated(ctx context.Context, chainID uint64) (LastCreated, bool, error) {
	var row struct {
		GameID     uint64 `db:"game_id"`
		CreatedAt  int64  `db:"created_at"`
		TxHash     string `db:"tx_hash"`
		Unresolved bool   `db:"unresolved"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT game_id, created_at, tx_hash, unresolved FROM last_created WHERE chain_id = ?`), chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return LastCreated{}, false, nil
	}
	if err != nil {
		return LastCreated{}, false, fmt.Errorf("load last created game: %w", err)
	}
	return LastCreated{
		ChainID:    chainID,
		GameID:     row.GameID,
		Timestamp:  time.UnixMilli(row.CreatedAt),
		TxHash:     common.HexToHash(row.TxHash),
		Unresolved: row.Unresolved,
	}, true, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
