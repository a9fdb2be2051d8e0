package cache

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// Reconciler folds fresh chain reads into a store.
type Reconciler struct {
	store Store
	log   log.Logger
}

func NewReconciler(store Store, l log.Logger) *Reconciler {
	if l == nil {
		l = log.Root()
	}
	return &Reconciler{store: store, log: l.New("component", "cache")}
}

func (r *Reconciler) Store() Store { return r.store }

// Cached returns the stored entry for key. Load failures read as empty.
func (r *Reconciler) Cached(ctx context.Context, key Key) []game.Game {
	games, err := r.store.Load(ctx, key)
	if err != nil {
		r.log.Warn("Cache read failed", "key", key, "err", err)
		return nil
	}
	return games
}

// Reconcile merges fresh into the stored entry and writes the result back,
// even when it is empty, so a confirmed-empty history is not re-queried.
// If the stored entry cannot be read nothing is written and the error is
// returned. Stores implementing Updater do the read and write atomically.
func (r *Reconciler) Reconcile(ctx context.Context, key Key, fresh []game.Game) ([]game.Game, error) {
	merge := func(stored []game.Game) []game.Game { return MergeGames(stored, fresh) }

	var merged []game.Game
	if u, ok := r.store.(Updater); ok {
		var err error
		if merged, err = u.Update(ctx, key, merge); err != nil {
			return nil, fmt.Errorf("reconcile cache: %w", err)
		}
	} else {
		stored, err := r.store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		merged = merge(stored)
		if err := r.store.Save(ctx, key, merged); err != nil {
			return merged, fmt.Errorf("persist cache: %w", err)
		}
	}
	r.log.Debug("Cache reconciled", "key", key, "fresh", len(fresh), "total", len(merged))
	return merged, nil
}
