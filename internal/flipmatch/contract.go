package flipmatch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/discovery"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// Contract is the FlipMatch surface the service drives. *chain.Handle
// implements it.
type Contract interface {
	ChainID() uint64
	Account() (common.Address, bool)

	GetGame(ctx context.Context, gameID uint64) (game.RawGame, error)
	GetPlayer(ctx context.Context, gameID uint64, player common.Address) (game.RawPlayer, error)
	GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error)
	GetGameCount(ctx context.Context) (uint64, error)
	GetActiveGames(ctx context.Context) ([]uint64, error)
	GetPlayerGames(ctx context.Context, player common.Address) ([]uint64, error)
	GetCardOrder(ctx context.Context, gameID uint64) ([]int, error)
	HouseBalance(ctx context.Context) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)

	GameCreatedFromReceipt(receipt *types.Receipt) (chain.CreatedEvent, bool)
	GameCreatedEvents(ctx context.Context, from, to uint64) ([]chain.CreatedEvent, error)
	GameCreatedInBlock(ctx context.Context, block uint64, txHash common.Hash) (chain.CreatedEvent, bool, error)
	GameCompletedTx(ctx context.Context, gameID, from uint64) (common.Hash, bool, error)

	Transact(ctx context.Context, req chain.TxRequest) (chain.Pending, error)
	RevertReason(ctx context.Context, p chain.Pending, receipt *types.Receipt) string
}

// Connector hands out contracts in the requested mode.
type Connector interface {
	Connect(ctx context.Context, mode chain.Mode) (Contract, error)
}

// AdapterConnector resolves handles through a chain.Adapter. Session may be
// nil for read-only use.
type AdapterConnector struct {
	Adapter *chain.Adapter
	Session *chain.Session
	// ChainID is the chain reads are requested for; zero means default.
	ChainID uint64
}

func (a *AdapterConnector) Connect(ctx context.Context, mode chain.Mode) (Contract, error) {
	chainID := a.ChainID
	if mode == chain.ReadWrite && a.Session != nil {
		if id := a.Session.ChainID(); id != nil && id.IsUint64() {
			chainID = id.Uint64()
		}
	}
	h, err := a.Adapter.Handle(ctx, mode, a.Session, chainID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// source exposes a Contract to discovery, normalizing every game it loads.
type source struct {
	c    Contract
	norm *game.Normalizer
}

var _ discovery.Source = (*source)(nil)

func (s *source) PlayerGames(ctx context.Context, player common.Address) ([]uint64, error) {
	return s.c.GetPlayerGames(ctx, player)
}

func (s *source) ActiveGames(ctx context.Context) ([]uint64, error) { return s.c.GetActiveGames(ctx) }

func (s *source) GameCount(ctx context.Context) (uint64, error) { return s.c.GetGameCount(ctx) }

func (s *source) LatestBlock(ctx context.Context) (uint64, error) { return s.c.BlockNumber(ctx) }

func (s *source) CreatedEvents(ctx context.Context, from, to uint64) ([]chain.CreatedEvent, error) {
	return s.c.GameCreatedEvents(ctx, from, to)
}

func (s *source) CreatedInBlock(ctx context.Context, block uint64, txHash common.Hash) (chain.CreatedEvent, bool, error) {
	return s.c.GameCreatedInBlock(ctx, block, txHash)
}

func (s *source) CreatedFromReceipt(receipt *types.Receipt) (chain.CreatedEvent, bool) {
	return s.c.GameCreatedFromReceipt(receipt)
}

// LoadGame reads and normalizes one game. An empty record means the id is
// not in use.
func (s *source) LoadGame(ctx context.Context, id uint64) (game.Game, error) {
	raw, err := s.c.GetGame(ctx, id)
	if err != nil {
		return game.Game{}, err
	}
	g := s.norm.Game(ctx, raw)
	if g.ID == 0 {
		return game.Game{}, errs.New(errs.GameNotFound, "game %d returned an empty record", id)
	}
	return g, nil
}
