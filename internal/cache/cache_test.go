package cache

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

var player = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")

func g(id uint64, name string) game.Game {
	return game.Game{ID: id, Name: name, Status: game.StatusCreated}
}

func ids(games []game.Game) []uint64 {
	out := make([]uint64, len(games))
	for i, x := range games {
		out[i] = x.ID
	}
	return out
}

func TestMergeGamesFreshWins(t *testing.T) {
	cached := []game.Game{g(1, "old one"), g(3, "old three")}
	fresh := []game.Game{g(3, "new three"), g(2, "two")}

	merged := MergeGames(cached, fresh)
	require.Equal(t, []uint64{3, 2, 1}, ids(merged))
	require.Equal(t, "new three", merged[0].Name)
	require.Equal(t, "old one", merged[2].Name)
}

func TestMergeGamesIdempotent(t *testing.T) {
	cases := []struct {
		cached, fresh []game.Game
	}{
		{nil, nil},
		{[]game.Game{g(5, "a")}, nil},
		{nil, []game.Game{g(5, "b")}},
		{[]game.Game{g(1, "a"), g(2, "b"), g(9, "c")}, []game.Game{g(2, "B"), g(7, "d")}},
	}
	for _, tc := range cases {
		once := MergeGames(tc.cached, tc.fresh)
		twice := MergeGames(once, tc.fresh)
		require.Equal(t, once, twice)
		for _, f := range tc.fresh {
			for _, m := range once {
				if m.ID == f.ID {
					require.Equal(t, f, m)
				}
			}
		}
	}
}

func TestMergeGamesEmptyIsNotNil(t *testing.T) {
	merged := MergeGames(nil, nil)
	require.NotNil(t, merged)
	require.Empty(t, merged)
}

func TestKeyLowercasesPlayer(t *testing.T) {
	k := Key{ChainID: 8453, Player: player}
	require.Equal(t, "basefair:games:8453:0xabcdef0000000000000000000000000000000001", k.String())
}

func quiet() log.Logger { return log.NewLogger(log.DiscardHandler()) }

func TestReconcilerPersistsEmptyResult(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, quiet())
	key := Key{ChainID: 8453, Player: player}

	merged, err := r.Reconcile(context.Background(), key, nil)
	require.NoError(t, err)
	require.Empty(t, merged)

	_, ok := store.entries[key]
	require.True(t, ok, "empty result must still be written")
}

func TestReconcilerMergesWithStoredEntry(t *testing.T) {
	store := NewMemoryStore()
	key := Key{ChainID: 8453, Player: player}
	require.NoError(t, store.Save(context.Background(), key, []game.Game{g(1, "one"), g(2, "stale")}))

	merged, err := NewReconciler(store, quiet()).Reconcile(context.Background(), key, []game.Game{g(2, "fresh")})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, ids(merged))

	stored, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, merged, stored)
}

// unreadable fails every Load. Embedding the interface hides Update so
// Reconcile takes the plain Load and Save path.
type unreadable struct {
	Store
	saves int
}

func (u *unreadable) Load(context.Context, Key) ([]game.Game, error) {
	return nil, errors.New("connection reset by peer")
}

func (u *unreadable) Save(ctx context.Context, key Key, games []game.Game) error {
	u.saves++
	return u.Store.Save(ctx, key, games)
}

func TestReconcileKeepsEntryWhenReadFails(t *testing.T) {
	ctx := context.Background()
	key := Key{ChainID: 8453, Player: player}
	mem := NewMemoryStore()
	require.NoError(t, mem.Save(ctx, key, []game.Game{g(3, "three"), g(2, "two"), g(1, "one")}))
	store := &unreadable{Store: mem}

	merged, err := NewReconciler(store, quiet()).Reconcile(ctx, key, []game.Game{g(4, "four")})
	require.Error(t, err)
	require.Nil(t, merged)
	require.Zero(t, store.saves)

	stored, err := mem.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 2, 1}, ids(stored))
}

func TestReconcileKeepsSQLEntryWhenDecodeFails(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, "sqlite3", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer s.Close()

	key := Key{ChainID: 8453, Player: player}
	_, err = s.db.ExecContext(ctx, `INSERT INTO game_cache (chain_id, player, games, updated_at) VALUES (?, ?, ?, ?)`,
		key.ChainID, key.PlayerHex(), "{truncated", 1)
	require.NoError(t, err)

	_, err = NewReconciler(s, quiet()).Reconcile(ctx, key, []game.Game{g(4, "four")})
	require.Error(t, err)

	var blob string
	require.NoError(t, s.db.GetContext(ctx, &blob, `SELECT games FROM game_cache WHERE chain_id = ? AND player = ?`, key.ChainID, key.PlayerHex()))
	require.Equal(t, "{truncated", blob)
}

// reconcileConcurrently has n writers each add one game to the same key.
// Every game must survive.
func reconcileConcurrently(t *testing.T, s Store, n int) {
	ctx := context.Background()
	key := Key{ChainID: 8453, Player: player}
	r := NewReconciler(s, quiet())

	var wg sync.WaitGroup
	errc := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := r.Reconcile(ctx, key, []game.Game{g(id, fmt.Sprintf("game %d", id))})
			errc <- err
		}(uint64(i))
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		require.NoError(t, err)
	}

	stored, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, stored, n)
	require.Equal(t, uint64(n), stored[0].ID)
}

func TestMemoryStoreConcurrentReconcile(t *testing.T) {
	reconcileConcurrently(t, NewMemoryStore(), 20)
}

func TestSQLiteStoreConcurrentReconcile(t *testing.T) {
	s, err := OpenSQL(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer s.Close()
	reconcileConcurrently(t, s, 20)
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := Key{ChainID: 8453, Player: player}

	games, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.Empty(t, games)

	first := g(4, "four")
	first.Stake = big.NewInt(3_000_000_000_000)
	first.Players = []common.Address{player}
	require.NoError(t, s.Save(ctx, key, []game.Game{first, g(2, "two")}))
	require.NoError(t, s.Save(ctx, key, []game.Game{first}))

	games, err = s.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, uint64(4), games[0].ID)
	require.Equal(t, "3000000000000", games[0].Stake.String())
	require.Equal(t, []common.Address{player}, games[0].Players)

	other := Key{ChainID: 1, Player: player}
	games, err = s.Load(ctx, other)
	require.NoError(t, err)
	require.Empty(t, games)

	_, ok, err := s.LastCreated(ctx, 8453)
	require.NoError(t, err)
	require.False(t, ok)

	ts := time.UnixMilli(1_700_000_000_123)
	tx := common.HexToHash("0xfeed")
	require.NoError(t, s.SaveLastCreated(ctx, LastCreated{ChainID: 8453, GameID: 4, Timestamp: ts, TxHash: tx, Unresolved: true}))
	rec, ok, err := s.LastCreated(ctx, 8453)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Unresolved)
	require.Equal(t, tx, rec.TxHash)

	require.NoError(t, s.SaveLastCreated(ctx, LastCreated{ChainID: 8453, GameID: 5, Timestamp: ts}))
	rec, ok, err = s.LastCreated(ctx, 8453)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), rec.GameID)
	require.True(t, ts.Equal(rec.Timestamp))
	require.False(t, rec.Unresolved)
	require.Equal(t, common.Hash{}, rec.TxHash)

	u, ok := s.(Updater)
	require.True(t, ok, "%T must update atomically", s)
	merged, err := u.Update(ctx, key, func(stored []game.Game) []game.Game {
		require.Equal(t, []uint64{4}, ids(stored))
		return MergeGames(stored, []game.Game{g(6, "six")})
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{6, 4}, ids(merged))
	games, err = s.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []uint64{6, 4}, ids(games))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQL(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("BASEFAIR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BASEFAIR_TEST_REDIS_URL not set")
	}
	rdb, err := ConnectRedis(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	s := NewRedisStore(rdb, 0)
	defer s.Close()
	exerciseStore(t, s)

	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	reconcileConcurrently(t, s, updateAttempts)
}
