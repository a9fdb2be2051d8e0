package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// Handle is a ready-to-call FlipMatch contract on one network.
type Handle struct {
	mode     Mode
	network  Network
	address  common.Address
	abis     *ABIs
	backend  Backend
	contract *bind.BoundContract
	session  *Session
	interval time.Duration
	log      log.Logger
}

func (h *Handle) Mode() Mode              { return h.mode }
func (h *Handle) Network() Network        { return h.network }
func (h *Handle) Address() common.Address { return h.address }
func (h *Handle) Backend() Backend        { return h.backend }
func (h *Handle) ChainID() uint64         { return h.network.ChainID }

// Account is the signing account of a read-write handle.
func (h *Handle) Account() (common.Address, bool) {
	if h.session == nil {
		return common.Address{}, false
	}
	return h.session.CurrentAccount()
}

// call packs method with the full ABI, executes it at the latest block and
// unpacks the result.
func (h *Handle) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := h.callRaw(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := unpack(h.abis.Full, method, data)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeFailure, err, "decode %s result", method)
	}
	return out, nil
}

func (h *Handle) callRaw(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	input, err := h.abis.Full.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &h.address, Data: input}
	if from, ok := h.Account(); ok {
		msg.From = from
	}
	data, err := h.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errs.Translate(err)
	}
	if len(data) == 0 {
		return nil, errs.New(errs.DecodeFailure, "%s returned no data", method)
	}
	return data, nil
}

// GetGame reads a game tuple. The full schema is tried first and the Lite
// schema second; the result is tagged with whichever decoded.
func (h *Handle) GetGame(ctx context.Context, gameID uint64) (game.RawGame, error) {
	data, err := h.callRaw(ctx, "getGame", new(big.Int).SetUint64(gameID))
	if err != nil {
		return game.RawGame{}, err
	}
	if out, fullErr := unpack(h.abis.Full, "getGame", data); fullErr == nil && len(out) == 1 {
		return game.RawGame{Schema: game.SchemaFull, Fields: game.FieldsOf(out[0])}, nil
	}
	out, err := unpack(h.abis.Lite, "getGame", data)
	if err != nil || len(out) != 1 {
		return game.RawGame{}, errs.Wrap(errs.DecodeFailure, err, "game %d matches no known schema", gameID)
	}
	return game.RawGame{Schema: game.SchemaLite, Fields: game.FieldsOf(out[0])}, nil
}

func (h *Handle) GetPlayer(ctx context.Context, gameID uint64, player common.Address) (game.RawPlayer, error) {
	out, err := h.call(ctx, "getPlayer", new(big.Int).SetUint64(gameID), player)
	if err != nil {
		return game.RawPlayer{}, err
	}
	return game.RawPlayer{Fields: game.FieldsOf(out[0])}, nil
}

func (h *Handle) GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error) {
	out, err := h.call(ctx, "getGamePlayers", new(big.Int).SetUint64(gameID))
	if err != nil {
		return nil, err
	}
	players, ok := out[0].([]common.Address)
	if !ok {
		return nil, errs.New(errs.DecodeFailure, "getGamePlayers returned %T", out[0])
	}
	return players, nil
}

func (h *Handle) GetGameCount(ctx context.Context) (uint64, error) {
	out, err := h.call(ctx, "getGameCount")
	if err != nil {
		return 0, err
	}
	return bigToID(out[0])
}

func (h *Handle) GetActiveGames(ctx context.Context) ([]uint64, error) {
	out, err := h.call(ctx, "getActiveGames")
	if err != nil {
		return nil, err
	}
	return idList(out[0])
}

func (h *Handle) GetPlayerGames(ctx context.Context, player common.Address) ([]uint64, error) {
	out, err := h.call(ctx, "getPlayerGames", player)
	if err != nil {
		return nil, err
	}
	return idList(out[0])
}

func (h *Handle) GetCardOrder(ctx context.Context, gameID uint64) ([]int, error) {
	out, err := h.call(ctx, "getCardOrder", new(big.Int).SetUint64(gameID))
	if err != nil {
		return nil, err
	}
	faces, ok := out[0].([]uint8)
	if !ok {
		return nil, errs.New(errs.DecodeFailure, "getCardOrder returned %T", out[0])
	}
	order := make([]int, len(faces))
	for i, f := range faces {
		order[i] = int(f)
	}
	return order, nil
}

func (h *Handle) HouseBalance(ctx context.Context) (*big.Int, error) {
	out, err := h.call(ctx, "houseBalance")
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, errs.New(errs.DecodeFailure, "houseBalance returned %T", out[0])
	}
	return v, nil
}

func (h *Handle) Owner(ctx context.Context) (common.Address, error) {
	out, err := h.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errs.New(errs.DecodeFailure, "owner returned %T", out[0])
	}
	return owner, nil
}

func (h *Handle) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := h.backend.BlockNumber(ctx)
	return n, errs.Translate(err)
}

func (h *Handle) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	b, err := h.backend.BalanceAt(ctx, account, nil)
	return b, errs.Translate(err)
}

// TxRequest describes one contract transaction.
type TxRequest struct {
	Method string
	Args   []interface{}
	Value  *big.Int
	// GasLimit skips estimation when non-zero.
	GasLimit uint64
	// Lite packs the call with the FlipMatchLite signature.
	Lite bool
}

// Transact signs and broadcasts req. The handle must be read-write.
func (h *Handle) Transact(ctx context.Context, req TxRequest) (Pending, error) {
	if h.mode != ReadWrite || h.session == nil {
		return nil, errs.New(errs.WalletNotConnected, "%s needs a connected wallet", req.Method)
	}
	opts, err := h.session.transactOpts(ctx, TxSummary{Method: req.Method, To: h.address, Value: req.Value, GasLimit: req.GasLimit})
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	if req.Lite {
		input, packErr := h.abis.Lite.Pack(req.Method, req.Args...)
		if packErr != nil {
			return nil, fmt.Errorf("pack %s: %w", req.Method, packErr)
		}
		tx, err = h.contract.RawTransact(opts, input)
	} else {
		tx, err = h.contract.Transact(opts, req.Method, req.Args...)
	}
	if err != nil {
		return nil, errs.Translate(err)
	}
	h.log.Info("Transaction sent", "method", req.Method, "tx", tx.Hash(), "gas", tx.Gas())
	return &PendingTx{tx: tx, backend: h.backend, interval: h.interval}, nil
}

// RevertReason replays a failed transaction from the handle's account.
// Transactions not sent through a Handle yield an empty reason.
func (h *Handle) RevertReason(ctx context.Context, p Pending, receipt *types.Receipt) string {
	pt, ok := p.(*PendingTx)
	if !ok || receipt == nil {
		return ""
	}
	from, _ := h.Account()
	reason, err := RevertReason(ctx, h.backend, pt.tx, from, receipt.BlockNumber)
	if err != nil {
		return ""
	}
	return reason
}

// unpack decodes data as the output of method, turning decoder panics on
// mismatched layouts into errors.
func unpack(a abi.ABI, method string, data []byte) (out []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unpack %s: %v", method, r)
		}
	}()
	return a.Unpack(method, data)
}

func bigToID(v interface{}) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		return 0, errs.New(errs.DecodeFailure, "expected uint256, got %T", v)
	}
	if !b.IsUint64() || b.Uint64() > game.MaxSafeInteger {
		return 0, errs.New(errs.DecodeFailure, "id %s out of range", b)
	}
	return b.Uint64(), nil
}

func idList(v interface{}) ([]uint64, error) {
	list, ok := v.([]*big.Int)
	if !ok {
		return nil, errs.New(errs.DecodeFailure, "expected uint256[], got %T", v)
	}
	ids := make([]uint64, 0, len(list))
	for _, b := range list {
		if id, err := bigToID(b); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
