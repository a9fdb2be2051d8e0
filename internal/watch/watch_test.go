package watch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
)

var creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type fakeEvents struct {
	head    uint64
	events  map[uint64]chain.CreatedEvent // by block
	ranges  [][2]uint64
	headErr error
}

func (f *fakeEvents) BlockNumber(context.Context) (uint64, error) { return f.head, f.headErr }

func (f *fakeEvents) GameCreatedEvents(_ context.Context, from, to uint64) ([]chain.CreatedEvent, error) {
	f.ranges = append(f.ranges, [2]uint64{from, to})
	var out []chain.CreatedEvent
	for b := from; b <= to; b++ {
		if ev, ok := f.events[b]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeGames map[uint64]game.Game

func (f fakeGames) GetGame(_ context.Context, id uint64) (game.Game, error) {
	g, ok := f[id]
	if !ok {
		return game.Game{}, errs.New(errs.GameNotFound, "game %d not found", id)
	}
	return g, nil
}

type recorder struct {
	mu  sync.Mutex
	ids []uint64
}

func (r *recorder) Publish(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, n.GameID)
	return nil
}

func quiet() log.Logger { return log.NewLogger(log.DiscardHandler()) }

func newWatcher(src *fakeEvents, games Games, from uint64) (*Watcher, *cache.MemoryStore, *recorder) {
	store := cache.NewMemoryStore()
	rec := &recorder{}
	connect := func(context.Context) (Events, error) { return src, nil }
	w := New(Config{ChainID: 8453, FromBlock: from}, connect, games, cache.NewReconciler(store, quiet()), rec, quiet())
	return w, store, rec
}

func TestPollAnnouncesAndCachesNewGames(t *testing.T) {
	src := &fakeEvents{head: 120, events: map[uint64]chain.CreatedEvent{
		105: {GameID: 7, Creator: creator, BlockNumber: 105},
		118: {GameID: 8, Creator: creator, BlockNumber: 118},
	}}
	games := fakeGames{7: {ID: 7, Creator: creator}, 8: {ID: 8, Creator: creator}}
	w, store, rec := newWatcher(src, games, 100)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []uint64{7, 8}, rec.ids)

	cached, err := store.Load(context.Background(), cache.Key{ChainID: 8453, Player: creator})
	require.NoError(t, err)
	require.Len(t, cached, 2)
	require.Equal(t, uint64(8), cached[0].ID)

	last, ok, err := store.LastCreated(context.Background(), 8453)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(8), last.GameID)

	// Nothing new until the head moves.
	n, err = w.Poll(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, [][2]uint64{{100, 120}}, src.ranges)
}

func TestPollStartsAtHeadAndSplitsRanges(t *testing.T) {
	src := &fakeEvents{head: 5000}
	w, _, _ := newWatcher(src, fakeGames{}, 0)

	_, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][2]uint64{{5000, 5000}}, src.ranges)

	src.head = 7500
	_, err = w.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][2]uint64{{5000, 5000}, {5001, 6000}, {6001, 7000}, {7001, 7500}}, src.ranges)
}

func TestPollAnnouncesUnreadableGames(t *testing.T) {
	src := &fakeEvents{head: 10, events: map[uint64]chain.CreatedEvent{10: {GameID: 3, Creator: creator}}}
	w, store, rec := newWatcher(src, fakeGames{}, 10)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []uint64{3}, rec.ids)
	cached, err := store.Load(context.Background(), cache.Key{ChainID: 8453, Player: creator})
	require.NoError(t, err)
	require.Empty(t, cached)
}

func TestPollHeadError(t *testing.T) {
	src := &fakeEvents{headErr: errors.New("connection refused")}
	w, _, rec := newWatcher(src, fakeGames{}, 0)
	_, err := w.Poll(context.Background())
	require.Error(t, err)
	require.Empty(t, rec.ids)
}
