package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
)

// Mode selects whether a handle can send transactions.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Adapter resolves contract handles for the supported network.
type Adapter struct {
	networks *Networks
	abis     *ABIs
	dial     Dialer
	log      log.Logger

	mu       sync.Mutex
	backends map[string]Backend
}

func NewAdapter(networks *Networks, abis *ABIs, dial Dialer, l log.Logger) *Adapter {
	if dial == nil {
		dial = DialBackend
	}
	if l == nil {
		l = log.Root()
	}
	return &Adapter{
		networks: networks,
		abis:     abis,
		dial:     dial,
		log:      l.New("component", "adapter"),
		backends: make(map[string]Backend),
	}
}

func (a *Adapter) Networks() *Networks { return a.networks }

// Handle returns a contract handle. ReadWrite needs a connected session on
// the supported chain; it never switches networks. ReadOnly falls back to
// the supported network when chainID is zero or unsupported.
func (a *Adapter) Handle(ctx context.Context, mode Mode, session *Session, chainID uint64) (*Handle, error) {
	var (
		backend Backend
		network Network
	)
	switch mode {
	case ReadWrite:
		if session == nil {
			return nil, errs.New(errs.WalletNotConnected, "no wallet available, install or connect one")
		}
		if _, ok := session.CurrentAccount(); !ok {
			return nil, errs.New(errs.NoWalletAccount, "wallet exposes no authorized account, connect it first")
		}
		active := session.ChainID()
		supported := new(big.Int).SetUint64(a.networks.Supported)
		if active == nil || active.Cmp(supported) != 0 {
			return nil, errs.New(errs.WrongNetwork, "wallet is on chain %v, switch it to %s (%d)", active, a.networks.Default().Name, a.networks.Supported)
		}
		network = a.networks.Default()
		backend = session.Backend()
	default:
		net, ok := a.networks.Lookup(chainID)
		if !ok || chainID != a.networks.Supported {
			if chainID != 0 {
				a.log.Warn("Unsupported chain for reads, using default network", "chain", chainID, "default", a.networks.Supported)
			}
			net = a.networks.Default()
		}
		network = net
	}

	address := network.FlipMatchAddress()
	if address == (common.Address{}) {
		return nil, errs.New(errs.ContractNotDeployed, "FlipMatch contract not deployed on %s (chain %d)", network.Name, network.ChainID)
	}
	if a.abis.Empty() {
		return nil, errs.New(errs.AbiNotLoaded, "FlipMatch ABI is not loaded")
	}

	if backend == nil {
		var err error
		if backend, err = a.readBackend(ctx, network.RPCURL); err != nil {
			return nil, err
		}
	}

	h := &Handle{
		mode:     mode,
		network:  network,
		address:  address,
		abis:     a.abis,
		backend:  backend,
		contract: bind.NewBoundContract(address, a.abis.Full, backend, backend, backend),
		session:  session,
		interval: DefaultReceiptInterval,
		log:      a.log.New("contract", address, "mode", mode),
	}
	return h, nil
}

func (a *Adapter) readBackend(ctx context.Context, url string) (Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.backends[url]; ok {
		return b, nil
	}
	b, err := a.dial(ctx, url)
	if err != nil {
		return nil, errs.Translate(err)
	}
	a.backends[url] = b
	return b, nil
}
