package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

type eventLog struct {
	d      *Discoverer
	window uint64
}

func (s *eventLog) Name() string { return "event-log" }

// Discover collects GameCreated ids in the recent block window. Player
// queries keep only games the player created or joined.
func (s *eventLog) Discover(ctx context.Context, q Query) (Result, error) {
	latest, err := s.d.src.LatestBlock(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("latest block: %w", err)
	}
	from := uint64(0)
	if latest > s.window {
		from = latest - s.window
	}
	events, err := s.d.src.CreatedEvents(ctx, from, latest)
	if err != nil {
		return Result{}, fmt.Errorf("GameCreated logs [%d, %d]: %w", from, latest, err)
	}

	ids := make([]uint64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.GameID)
	}
	ids = orderedSet(ids)
	if q.Player == nil {
		return Result{IDs: ids}, nil
	}

	loaded := s.d.LoadGames(ctx, ids)
	res := Result{IDs: []uint64{}, Games: map[uint64]game.Game{}}
	for _, id := range ids {
		g, ok := loaded[id]
		if !ok || !g.HasPlayer(*q.Player) {
			continue
		}
		res.IDs = append(res.IDs, id)
		res.Games[id] = g
	}
	return res, nil
}

// IterationPolicy bounds the backward id walk. The walk is an approximation:
// a burst of transient read errors looks like a run of missing ids and can
// end it early.
type IterationPolicy struct {
	// Ceiling is the start id when the counter is unreadable, and the
	// maximum number of ids examined.
	Ceiling uint64
	// Buffer is added above the counter to catch games it does not yet
	// reflect.
	Buffer    uint64
	BatchSize int
	// MaxEmptyRun stops the walk after this many consecutive missing ids
	// below an existing one.
	MaxEmptyRun int
}

func DefaultIterationPolicy() IterationPolicy {
	return IterationPolicy{Ceiling: 1000, Buffer: 50, BatchSize: 50, MaxEmptyRun: 100}
}

type iteration struct {
	d      *Discoverer
	policy IterationPolicy
}

func (s *iteration) Name() string { return "iteration" }

func (s *iteration) Discover(ctx context.Context, q Query) (Result, error) {
	p := s.policy
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
	start := p.Ceiling
	if count, err := s.d.src.GameCount(ctx); err == nil && count > 0 {
		start = count + p.Buffer
	} else if err != nil {
		s.d.log.Debug("Game counter unavailable, iterating from ceiling", "ceiling", p.Ceiling, "err", err)
	}
	low := uint64(1)
	if p.Ceiling > 0 && start > p.Ceiling {
		low = start - p.Ceiling + 1
	}

	res := Result{IDs: []uint64{}, Games: map[uint64]game.Game{}}
	seenAny := false
	emptyRun := 0
	for hi := start; hi >= low; {
		lo := low
		if hi-low+1 > uint64(p.BatchSize) {
			lo = hi - uint64(p.BatchSize) + 1
		}
		batch := make([]uint64, 0, hi-lo+1)
		for id := hi; id >= lo; id-- {
			batch = append(batch, id)
		}
		loaded := s.d.LoadGames(ctx, batch)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		for _, id := range batch {
			g, ok := loaded[id]
			if !ok {
				if seenAny {
					emptyRun++
				}
				continue
			}
			seenAny = true
			emptyRun = 0
			if q.Player != nil && !g.HasPlayer(*q.Player) {
				continue
			}
			res.IDs = append(res.IDs, id)
			res.Games[id] = g
		}
		if p.MaxEmptyRun > 0 && emptyRun >= p.MaxEmptyRun {
			s.d.log.Debug("Stopping iteration after run of missing ids", "below", lo, "run", emptyRun)
			break
		}
		if lo == low {
			break
		}
		hi = lo - 1
	}
	return res, nil
}

// LoadGames reads ids concurrently, paced by the limiter. Ids that fail to
// load are absent from the result.
func (d *Discoverer) LoadGames(ctx context.Context, ids []uint64) map[uint64]game.Game {
	results := make([]*game.Game, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := d.limiter.Wait(gctx); err != nil {
				return err
			}
			loaded, err := d.src.LoadGame(gctx, id)
			if err != nil || loaded.ID == 0 {
				return nil
			}
			results[i] = &loaded
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[uint64]game.Game, len(ids))
	for i, r := range results {
		if r != nil {
			out[ids[i]] = *r
		}
	}
	return out
}
