package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
)

// TxSummary describes a transaction awaiting the user's approval.
type TxSummary struct {
	Method   string
	To       common.Address
	Value    *big.Int
	GasLimit uint64
}

// Approver stands in for the wallet prompt. Returning false rejects the
// transaction.
type Approver func(ctx context.Context, tx TxSummary) bool

// Session is the wallet connection owned by the caller and passed to every
// read-write handle request. Its lifecycle is Connect, use, Disconnect.
type Session struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	account   common.Address
	backend   Backend
	chainID   *big.Int
	connected bool
	approve   Approver
}

// NewKeySession builds a session signing with a hex private key through the
// given wallet backend.
func NewKeySession(hexKey string, backend Backend) (*Session, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Session{
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}, nil
}

// SetApprover installs the prompt consulted before each transaction.
func (s *Session) SetApprover(a Approver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approve = a
}

// Connect authorizes the account and records the wallet's active chain.
func (s *Session) Connect(ctx context.Context) error {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return errs.Translate(fmt.Errorf("wallet chain id: %w", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = chainID
	s.connected = true
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.chainID = nil
}

// CurrentAccount returns the authorized account, if connected.
func (s *Session) CurrentAccount() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return common.Address{}, false
	}
	return s.account, true
}

// ChainID is the wallet's active chain, or nil when disconnected.
func (s *Session) ChainID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainID == nil {
		return nil
	}
	return new(big.Int).Set(s.chainID)
}

func (s *Session) Backend() Backend { return s.backend }

// transactOpts returns signing options for one transaction.
func (s *Session) transactOpts(ctx context.Context, sum TxSummary) (*bind.TransactOpts, error) {
	s.mu.RLock()
	connected, chainID, approve := s.connected, s.chainID, s.approve
	s.mu.RUnlock()
	if !connected {
		return nil, errs.New(errs.WalletNotConnected, "connect a wallet first")
	}
	if approve != nil && !approve(ctx, sum) {
		return nil, errs.New(errs.UserRejected, "transaction rejected in wallet")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.Value = sum.Value
	opts.GasLimit = sum.GasLimit
	return opts, nil
}
