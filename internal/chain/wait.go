package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
)

const (
	// DefaultReceiptInterval is the receipt polling interval.
	DefaultReceiptInterval = 2 * time.Second
	// DefaultAttemptTimeout bounds a single confirmation attempt.
	DefaultAttemptTimeout = 3 * time.Minute
)

// DefaultBackoff is the delay after each rate-limited confirmation attempt.
// Its length is the attempt ceiling.
var DefaultBackoff = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// Pending is a broadcast transaction whose receipt can be awaited.
type Pending interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*types.Receipt, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Waiter awaits confirmations, backing off only when the endpoint rate
// limits us.
type Waiter struct {
	backoff        []time.Duration
	attemptTimeout time.Duration
	sleep          SleepFunc
	log            log.Logger
}

func NewWaiter(l log.Logger) *Waiter {
	if l == nil {
		l = log.Root()
	}
	return &Waiter{
		backoff:        DefaultBackoff,
		attemptTimeout: DefaultAttemptTimeout,
		sleep:          Sleep,
		log:            l.New("component", "waiter"),
	}
}

// WithSleep replaces the clock used between attempts.
func (w *Waiter) WithSleep(s SleepFunc) *Waiter {
	w.sleep = s
	return w
}

// WithBackoff replaces the delay table.
func (w *Waiter) WithBackoff(d []time.Duration) *Waiter {
	w.backoff = d
	return w
}

// WithAttemptTimeout bounds a single attempt.
func (w *Waiter) WithAttemptTimeout(d time.Duration) *Waiter {
	w.attemptTimeout = d
	return w
}

// AwaitConfirmation returns the receipt of p. Rate-limited attempts are
// retried after the table delay; after the last one it fails with
// ConfirmationTimeout carrying the transaction hash. Any other failure is
// returned at once. Receipt status is left to the caller.
func (w *Waiter) AwaitConfirmation(ctx context.Context, p Pending, op string) (*types.Receipt, error) {
	hash := p.Hash()
	for attempt := 1; attempt <= len(w.backoff); attempt++ {
		receipt, err := w.attempt(ctx, p)
		if err == nil {
			w.log.Debug("Transaction confirmed", "op", op, "tx", hash, "block", receipt.BlockNumber, "attempt", attempt)
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ConfirmationTimeout, ctx.Err(), "%s: stopped waiting for confirmation", op).WithTx(hash)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.ConfirmationTimeout, err, "%s: no receipt within %s", op, w.attemptTimeout).WithTx(hash)
		}
		if !errs.IsRateLimit(err) {
			return nil, errs.Translate(err)
		}

		delay := w.backoff[attempt-1]
		w.log.Warn("Rate limited while waiting for receipt, backing off", "op", op, "tx", hash, "attempt", attempt, "delay", delay)
		if err := w.sleep(ctx, delay); err != nil {
			return nil, errs.Wrap(errs.ConfirmationTimeout, err, "%s: stopped waiting for confirmation", op).WithTx(hash)
		}
	}
	return nil, errs.New(errs.ConfirmationTimeout, "%s: confirmation not observed after %d rate-limited attempts, check the explorer", op, len(w.backoff)).WithTx(hash)
}

func (w *Waiter) attempt(ctx context.Context, p Pending) (*types.Receipt, error) {
	if w.attemptTimeout <= 0 {
		return p.Wait(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	defer cancel()
	return p.Wait(ctx)
}

// PendingTx is a transaction sent through a Handle.
type PendingTx struct {
	tx       *types.Transaction
	backend  Backend
	interval time.Duration
}

func (p *PendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *PendingTx) Transaction() *types.Transaction { return p.tx }

// Wait polls for the receipt. A missing receipt means still pending; other
// errors end the wait so the caller can classify them.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.tx.Hash())
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RevertReason replays a failed transaction at its block and decodes the
// revert string.
func RevertReason(ctx context.Context, backend Backend, tx *types.Transaction, from common.Address, blockNumber *big.Int) (string, error) {
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	out, err := backend.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return err.Error(), nil
	}
	if len(out) == 0 {
		return "", nil
	}
	return abi.UnpackRevert(out)
}
