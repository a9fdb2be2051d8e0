// Package flipmatch is the action and query surface of the FlipMatch game:
// it validates input, sends transactions, awaits confirmation and turns
// chain state into game records.
package flipmatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/discovery"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
)

const (
	// DefaultReadTimeout bounds a single getGame call.
	DefaultReadTimeout = 10 * time.Second

	// Fixed gas ceilings; estimation is skipped so the wallet prompt shows
	// even when a simulation would fail.
	CommitGasLimit = 500_000
	SubmitGasLimit = 3_000_000
)

// DefaultGameRetryDelays is the wait before each retry of a getGame that
// could not be decoded yet.
var DefaultGameRetryDelays = []time.Duration{
	2 * time.Second, 2500 * time.Millisecond, 3 * time.Second, 3500 * time.Millisecond,
	4 * time.Second, 4500 * time.Millisecond, 5 * time.Second, 6 * time.Second,
	7 * time.Second, 8 * time.Second, 9 * time.Second, 10 * time.Second,
	12 * time.Second, 15 * time.Second, 20 * time.Second,
}

// Options configures a Service. Zero fields take defaults.
type Options struct {
	Waiter      *chain.Waiter
	Cache       *cache.Reconciler
	Publisher   notify.Publisher
	Policy      *discovery.Policy
	LocateWaits []time.Duration
	RetryDelays []time.Duration
	ReadTimeout time.Duration
	Sleep       chain.SleepFunc
	Logger      log.Logger
}

// Service runs FlipMatch operations against contracts from a Connector.
type Service struct {
	conn        Connector
	waiter      *chain.Waiter
	cache       *cache.Reconciler
	publisher   notify.Publisher
	policy      discovery.Policy
	locateWaits []time.Duration
	retryDelays []time.Duration
	readTimeout time.Duration
	sleep       chain.SleepFunc
	log         log.Logger
}

func New(conn Connector, opts Options) *Service {
	l := opts.Logger
	if l == nil {
		l = log.Root()
	}
	s := &Service{
		conn:        conn,
		waiter:      opts.Waiter,
		cache:       opts.Cache,
		publisher:   opts.Publisher,
		policy:      discovery.DefaultPolicy(),
		locateWaits: discovery.DefaultLocateWaits,
		retryDelays: DefaultGameRetryDelays,
		readTimeout: DefaultReadTimeout,
		sleep:       opts.Sleep,
		log:         l.New("component", "flipmatch"),
	}
	if s.waiter == nil {
		s.waiter = chain.NewWaiter(l)
	}
	if s.cache == nil {
		s.cache = cache.NewReconciler(cache.NewMemoryStore(), l)
	}
	if opts.Policy != nil {
		s.policy = *opts.Policy
	}
	if opts.LocateWaits != nil {
		s.locateWaits = opts.LocateWaits
	}
	if opts.RetryDelays != nil {
		s.retryDelays = opts.RetryDelays
	}
	if opts.ReadTimeout > 0 {
		s.readTimeout = opts.ReadTimeout
	}
	if s.sleep == nil {
		s.sleep = chain.Sleep
	}
	return s
}

func (s *Service) read(ctx context.Context) (Contract, error) {
	return s.conn.Connect(ctx, chain.ReadOnly)
}

// write returns a read-write contract and its signing account.
func (s *Service) write(ctx context.Context) (Contract, common.Address, error) {
	c, err := s.conn.Connect(ctx, chain.ReadWrite)
	if err != nil {
		return nil, common.Address{}, err
	}
	account, ok := c.Account()
	if !ok {
		return nil, common.Address{}, errs.New(errs.NoWalletAccount, "wallet exposes no authorized account, connect it first")
	}
	return c, account, nil
}

func (s *Service) source(c Contract) *source {
	return &source{c: c, norm: game.NewNormalizer(c, s.log)}
}

func (s *Service) discoverer(c Contract) *discovery.Discoverer {
	return discovery.New(s.source(c), s.policy, s.log)
}

// execute sends req, waits for its receipt and turns a reverted receipt
// into a classified error carrying the transaction hash.
func (s *Service) execute(ctx context.Context, c Contract, req chain.TxRequest) (*types.Receipt, error) {
	p, err := c.Transact(ctx, req)
	if err != nil {
		if errs.CodeOf(err) == errs.UserRejected {
			s.log.Info("Transaction rejected by user", "method", req.Method)
		}
		return nil, err
	}
	receipt, err := s.waiter.AwaitConfirmation(ctx, p, req.Method)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, s.revertError(ctx, c, p, receipt, req.Method)
	}
	s.log.Info("Transaction confirmed", "method", req.Method, "tx", receipt.TxHash, "block", receipt.BlockNumber)
	return receipt, nil
}

func (s *Service) revertError(ctx context.Context, c Contract, p chain.Pending, receipt *types.Receipt, method string) error {
	hash := p.Hash()
	reason := c.RevertReason(ctx, p, receipt)
	s.log.Warn("Transaction reverted", "method", method, "tx", hash, "reason", reason)
	if reason == "" {
		return errs.New(errs.ContractReverted, "%s reverted", method).WithTx(hash)
	}
	var typed *errs.Error
	if errors.As(errs.Translate(fmt.Errorf("execution reverted: %s", reason)), &typed) {
		return typed.WithTx(hash)
	}
	return errs.New(errs.ContractReverted, "%s reverted: %s", method, reason).WithTx(hash)
}

func gameIDArg(id uint64) (*big.Int, error) {
	if id == 0 || id > game.MaxSafeInteger {
		return nil, errs.New(errs.InvalidGameID, "invalid game id %d", id)
	}
	return new(big.Int).SetUint64(id), nil
}
