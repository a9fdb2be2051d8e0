package discovery

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
)

// DefaultLocateWaits are the pauses between lookup rounds for a new game,
// absorbing indexing lag.
var DefaultLocateWaits = []time.Duration{15 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}

// counterSlack is how far past the counter an id may be before it is
// rejected outright.
const counterSlack = 2

// Locator finds the id assigned by a createGame transaction.
type Locator struct {
	src   Source
	waits []time.Duration
	sleep chain.SleepFunc
	log   log.Logger
}

func NewLocator(src Source, l log.Logger) *Locator {
	if l == nil {
		l = log.Root()
	}
	return &Locator{src: src, waits: DefaultLocateWaits, sleep: chain.Sleep, log: l.New("component", "locator")}
}

func (l *Locator) WithSleep(s chain.SleepFunc) *Locator {
	l.sleep = s
	return l
}

func (l *Locator) WithWaits(w []time.Duration) *Locator {
	l.waits = w
	return l
}

// Locate returns the id of the game created by receipt's transaction. The
// receipt's own logs are authoritative; otherwise event and counter lookups
// are retried between waits. When every round fails it returns the best
// guess from the counter together with a GameIdUnresolved error.
func (l *Locator) Locate(ctx context.Context, receipt *types.Receipt, creator common.Address) (uint64, error) {
	if ev, ok := l.src.CreatedFromReceipt(receipt); ok {
		return ev.GameID, nil
	}

	var guess uint64
	for round := 0; round <= len(l.waits); round++ {
		if round > 0 {
			if err := l.sleep(ctx, l.waits[round-1]); err != nil {
				return guess, err
			}
		}
		id, g := l.lookup(ctx, receipt, creator)
		if id > 0 {
			l.log.Info("Located new game", "game", id, "round", round)
			return id, nil
		}
		if g > guess {
			guess = g
		}
		l.log.Debug("New game id not indexed yet", "round", round, "guess", guess)
	}
	return guess, errs.New(errs.GameIdUnresolved, "game id for tx %s not indexed yet, latest counter is %d", receipt.TxHash.Hex(), guess).WithTx(receipt.TxHash)
}

// lookup runs one round, returning a confirmed id or a counter guess.
func (l *Locator) lookup(ctx context.Context, receipt *types.Receipt, creator common.Address) (uint64, uint64) {
	count, countErr := l.src.GameCount(ctx)
	plausible := func(id uint64) bool {
		return countErr != nil || id <= count+counterSlack
	}

	if receipt.BlockNumber != nil {
		ev, ok, err := l.src.CreatedInBlock(ctx, receipt.BlockNumber.Uint64(), receipt.TxHash)
		switch {
		case err != nil:
			l.log.Debug("GameCreated query failed", "err", err)
		case ok && plausible(ev.GameID):
			return ev.GameID, count
		case ok:
			l.log.Warn("GameCreated id beyond counter, ignoring", "game", ev.GameID, "counter", count)
		}
	}
	if countErr != nil {
		return 0, 0
	}

	candidates := []uint64{count}
	if active, err := l.src.ActiveGames(ctx); err == nil {
		var highest uint64
		for _, id := range active {
			if id > highest {
				highest = id
			}
		}
		if highest > count && plausible(highest) {
			candidates = append([]uint64{highest}, candidates...)
		}
	}
	for _, id := range candidates {
		if id == 0 {
			continue
		}
		g, err := l.src.LoadGame(ctx, id)
		if err == nil && g.ID == id && g.Creator == creator {
			return id, count
		}
	}
	return 0, count
}
