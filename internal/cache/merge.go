// Package cache keeps per-player projections of chain games so views can
// render before fresh reads return.
package cache

import (
	"sort"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// MergeGames overlays fresh onto cached by id. A fresh entry always replaces
// the cached one with the same id. The result is ordered by id, newest first.
func MergeGames(cached, fresh []game.Game) []game.Game {
	byID := make(map[uint64]game.Game, len(cached)+len(fresh))
	for _, g := range cached {
		byID[g.ID] = g
	}
	for _, g := range fresh {
		byID[g.ID] = g
	}
	out := make([]game.Game, 0, len(byID))
	for _, g := range byID {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
