// Package discovery enumerates FlipMatch game ids through an ordered set of
// fallback strategies and locates the id of a freshly created game.
package discovery

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// Source is the read surface the strategies consume.
type Source interface {
	PlayerGames(ctx context.Context, player common.Address) ([]uint64, error)
	ActiveGames(ctx context.Context) ([]uint64, error)
	GameCount(ctx context.Context) (uint64, error)
	LatestBlock(ctx context.Context) (uint64, error)
	CreatedEvents(ctx context.Context, from, to uint64) ([]chain.CreatedEvent, error)
	CreatedInBlock(ctx context.Context, block uint64, txHash common.Hash) (chain.CreatedEvent, bool, error)
	CreatedFromReceipt(receipt *types.Receipt) (chain.CreatedEvent, bool)
	// LoadGame returns a normalized game, or an error when it does not
	// exist or cannot be read.
	LoadGame(ctx context.Context, id uint64) (game.Game, error)
}

// Query selects whose games to enumerate. A nil Player means active games,
// or every game when All is set.
type Query struct {
	Player *common.Address
	All    bool
}

// Result is an ordered, duplicate-free id set, most recent first. Games
// holds records a strategy already loaded while filtering.
type Result struct {
	Strategy string
	IDs      []uint64
	Games    map[uint64]game.Game
}

// Strategy is one way of enumerating ids.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, q Query) (Result, error)
}

// Policy tunes the strategies.
type Policy struct {
	PlayerEventWindow uint64
	ActiveEventWindow uint64
	AllEventWindow    uint64
	Iteration         IterationPolicy
	// RequestsPerSecond paces the per-game reads of event filtering and
	// iteration; zero disables pacing.
	RequestsPerSecond float64
}

func DefaultPolicy() Policy {
	return Policy{
		PlayerEventWindow: 10000,
		ActiveEventWindow: 1000,
		AllEventWindow:    5000,
		Iteration:         DefaultIterationPolicy(),
		RequestsPerSecond: 25,
	}
}

// Discoverer runs strategies in priority order.
type Discoverer struct {
	src     Source
	policy  Policy
	limiter *rate.Limiter
	log     log.Logger
}

func New(src Source, policy Policy, l log.Logger) *Discoverer {
	if l == nil {
		l = log.Root()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if policy.RequestsPerSecond > 0 {
		burst := policy.Iteration.BatchSize
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(policy.RequestsPerSecond), burst)
	}
	return &Discoverer{src: src, policy: policy, limiter: limiter, log: l.New("component", "discovery")}
}

// Strategies returns the ordered strategies for q.
func (d *Discoverer) Strategies(q Query) []Strategy {
	if q.Player == nil && q.All {
		return []Strategy{
			&eventLog{d: d, window: d.policy.AllEventWindow},
			&iteration{d: d, policy: d.policy.Iteration},
			&activeIndex{src: d.src},
		}
	}
	window := d.policy.ActiveEventWindow
	first := Strategy(&activeIndex{src: d.src})
	if q.Player != nil {
		window = d.policy.PlayerEventWindow
		first = &playerIndex{src: d.src}
	}
	return []Strategy{
		first,
		&eventLog{d: d, window: window},
		&iteration{d: d, policy: d.policy.Iteration},
	}
}

// DiscoverGameIDs returns the result of the first strategy that yields ids.
// Failing or empty strategies fall through; when all do, the result is empty.
func (d *Discoverer) DiscoverGameIDs(ctx context.Context, q Query) (Result, error) {
	for _, s := range d.Strategies(q) {
		res, err := s.Discover(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			d.log.Warn("Discovery strategy failed", "strategy", s.Name(), "err", err)
			continue
		}
		if len(res.IDs) == 0 {
			d.log.Debug("Discovery strategy found nothing", "strategy", s.Name())
			continue
		}
		res.Strategy = s.Name()
		res.IDs = orderedSet(res.IDs)
		d.log.Debug("Discovered games", "strategy", s.Name(), "count", len(res.IDs))
		return res, nil
	}
	return Result{IDs: []uint64{}}, nil
}

type playerIndex struct{ src Source }

func (s *playerIndex) Name() string { return "player-index" }

func (s *playerIndex) Discover(ctx context.Context, q Query) (Result, error) {
	ids, err := s.src.PlayerGames(ctx, *q.Player)
	return Result{IDs: ids}, err
}

type activeIndex struct{ src Source }

func (s *activeIndex) Name() string { return "active-index" }

func (s *activeIndex) Discover(ctx context.Context, _ Query) (Result, error) {
	ids, err := s.src.ActiveGames(ctx)
	return Result{IDs: ids}, err
}

// orderedSet drops zero and duplicate ids and sorts descending.
func orderedSet(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
