package game

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// HouseEdgePct is kept by the house when a player beats the AI.
	HouseEdgePct = 5
	// CommissionPct is taken from the pot of a player-vs-player game.
	CommissionPct = 10
)

// WinnerPrize derives the payout for a finished game, or nil when the game
// has no winner yet.
func WinnerPrize(g *Game) *big.Int {
	if !g.Status.Finished() || g.Winner == (common.Address{}) {
		return nil
	}
	if g.GameType == AIVsPlayer {
		stake := nonNil(g.Stake)
		if g.Winner == HouseAddress {
			return new(big.Int).Set(stake)
		}
		return percent(stake, 200-HouseEdgePct)
	}
	return percent(nonNil(g.TotalPrize), 100-CommissionPct)
}

func percent(v *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return zero()
	}
	return v
}

func zero() *big.Int { return new(big.Int) }
