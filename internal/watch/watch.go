// Package watch follows GameCreated events, records each new game in its
// creator's cache entry and announces it.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/flipmatch"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
)

// MaxRange caps the blocks covered by one log query.
const MaxRange = 1000

// Events is the chain surface the watcher polls.
type Events interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GameCreatedEvents(ctx context.Context, from, to uint64) ([]chain.CreatedEvent, error)
}

// Games reads a normalized game.
type Games interface {
	GetGame(ctx context.Context, gameID uint64) (game.Game, error)
}

type Config struct {
	ChainID  uint64
	Interval time.Duration
	// FromBlock is the first block scanned; zero starts at the head.
	FromBlock uint64
	// ReadsPerSecond paces game reads; zero disables pacing.
	ReadsPerSecond float64
}

type Watcher struct {
	cfg     Config
	connect func(ctx context.Context) (Events, error)
	games   Games
	cache   *cache.Reconciler
	pub     notify.Publisher
	limiter *rate.Limiter
	next    uint64
	log     log.Logger
}

func New(cfg Config, connect func(ctx context.Context) (Events, error), games Games, rc *cache.Reconciler, pub notify.Publisher, l log.Logger) *Watcher {
	if l == nil {
		l = log.Root()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.ReadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), 1)
	}
	return &Watcher{
		cfg:     cfg,
		connect: connect,
		games:   games,
		cache:   rc,
		pub:     pub,
		limiter: limiter,
		next:    cfg.FromBlock,
		log:     l.New("component", "watcher"),
	}
}

// FromConnector adapts a flipmatch.Connector to the watcher's event source,
// connecting read-only on every poll.
func FromConnector(conn flipmatch.Connector) func(ctx context.Context) (Events, error) {
	return func(ctx context.Context) (Events, error) {
		return conn.Connect(ctx, chain.ReadOnly)
	}
}

// Run polls every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("Watching for new games", "interval", w.cfg.Interval, "from", w.next)
	for {
		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("Poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("Watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll scans the blocks since the last poll and handles every new game.
// It returns the number of games announced.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	src, err := w.connect(ctx)
	if err != nil {
		return 0, err
	}
	head, err := src.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	if w.next == 0 {
		w.next = head
	}
	if w.next > head {
		return 0, nil
	}

	announced := 0
	for from := w.next; from <= head; {
		to := head
		if to-from+1 > MaxRange {
			to = from + MaxRange - 1
		}
		events, err := src.GameCreatedEvents(ctx, from, to)
		if err != nil {
			return announced, fmt.Errorf("GameCreated logs [%d, %d]: %w", from, to, err)
		}
		for _, ev := range events {
			if err := w.handle(ctx, ev); err != nil {
				return announced, err
			}
			announced++
		}
		w.next = to + 1
		from = to + 1
	}
	return announced, nil
}

func (w *Watcher) handle(ctx context.Context, ev chain.CreatedEvent) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	g, err := w.games.GetGame(ctx, ev.GameID)
	if err != nil {
		w.log.Warn("New game not readable, announcing anyway", "game", ev.GameID, "err", err)
	} else if ev.Creator != (common.Address{}) {
		if _, err := w.cache.Reconcile(ctx, cache.Key{ChainID: w.cfg.ChainID, Player: ev.Creator}, []game.Game{g}); err != nil {
			w.log.Warn("Caching new game failed", "game", ev.GameID, "err", err)
		}
	}

	n := notify.NewNotification(w.cfg.ChainID, ev.GameID)
	n.TxHash = ev.TxHash
	if err := w.cache.Store().SaveLastCreated(ctx, cache.LastCreated{ChainID: w.cfg.ChainID, GameID: ev.GameID, Timestamp: n.Timestamp, TxHash: ev.TxHash}); err != nil {
		w.log.Warn("Recording last created game failed", "game", ev.GameID, "err", err)
	}
	if w.pub != nil {
		if err := w.pub.Publish(ctx, n); err != nil {
			w.log.Warn("Publishing game created failed", "game", ev.GameID, "err", err)
		}
	}
	w.log.Info("New game", "game", ev.GameID, "creator", ev.Creator, "block", ev.BlockNumber)
	return nil
}
