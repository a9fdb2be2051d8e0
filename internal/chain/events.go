package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// CreatedEvent is a decoded GameCreated log.
type CreatedEvent struct {
	GameID      uint64
	Creator     common.Address
	GameType    game.GameType
	Stake       *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// ParseGameCreated decodes a GameCreated log emitted by contract. Logs of
// other contracts or events report false.
func ParseGameCreated(a *ABIs, contract common.Address, lg *types.Log) (CreatedEvent, bool) {
	ev, ok := a.Full.Events[EventGameCreated]
	if !ok || lg == nil || lg.Address != contract || len(lg.Topics) < 2 || lg.Topics[0] != ev.ID {
		return CreatedEvent{}, false
	}
	id := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !id.IsUint64() || id.Sign() == 0 {
		return CreatedEvent{}, false
	}
	out := CreatedEvent{
		GameID:      id.Uint64(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Stake:       new(big.Int),
	}
	if len(lg.Topics) > 2 {
		out.Creator = common.BytesToAddress(lg.Topics[2].Bytes())
	}
	fields := map[string]interface{}{}
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(fields, lg.Data); err == nil {
		if t, ok := fields["gameType"].(uint8); ok && game.GameType(t) == game.PlayerVsPlayer {
			out.GameType = game.PlayerVsPlayer
		}
		if s, ok := fields["stake"].(*big.Int); ok {
			out.Stake = s
		}
	}
	return out, true
}

// GameCreatedFromReceipt returns the first GameCreated event in receipt.
func (h *Handle) GameCreatedFromReceipt(receipt *types.Receipt) (CreatedEvent, bool) {
	if receipt == nil {
		return CreatedEvent{}, false
	}
	for _, lg := range receipt.Logs {
		if ev, ok := ParseGameCreated(h.abis, h.address, lg); ok {
			return ev, true
		}
	}
	return CreatedEvent{}, false
}

// GameCreatedEvents returns GameCreated events in [from, to].
func (h *Handle) GameCreatedEvents(ctx context.Context, from, to uint64) ([]CreatedEvent, error) {
	logs, err := h.filter(ctx, EventGameCreated, from, to)
	if err != nil {
		return nil, err
	}
	events := make([]CreatedEvent, 0, len(logs))
	for i := range logs {
		if ev, ok := ParseGameCreated(h.abis, h.address, &logs[i]); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// GameCreatedInBlock finds the GameCreated event emitted by txHash in block.
func (h *Handle) GameCreatedInBlock(ctx context.Context, block uint64, txHash common.Hash) (CreatedEvent, bool, error) {
	events, err := h.GameCreatedEvents(ctx, block, block)
	if err != nil {
		return CreatedEvent{}, false, err
	}
	for _, ev := range events {
		if ev.TxHash == txHash {
			return ev, true, nil
		}
	}
	return CreatedEvent{}, false, nil
}

// GameCompletedTx returns the transaction of the latest GameCompleted event
// for gameID at or after block from.
func (h *Handle) GameCompletedTx(ctx context.Context, gameID, from uint64) (common.Hash, bool, error) {
	topic := common.BigToHash(new(big.Int).SetUint64(gameID))
	logs, err := h.filter(ctx, EventGameCompleted, from, 0, topic)
	if err != nil {
		return common.Hash{}, false, err
	}
	if len(logs) == 0 {
		return common.Hash{}, false, nil
	}
	return logs[len(logs)-1].TxHash, true, nil
}

// filter queries logs of the named event. A zero to means latest.
func (h *Handle) filter(ctx context.Context, event string, from, to uint64, indexed ...common.Hash) ([]types.Log, error) {
	ev, ok := h.abis.Full.Events[event]
	if !ok {
		return nil, errs.New(errs.AbiNotLoaded, "event %s missing from ABI", event)
	}
	topics := [][]common.Hash{{ev.ID}}
	for _, t := range indexed {
		topics = append(topics, []common.Hash{t})
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{h.address},
		Topics:    topics,
	}
	if to > 0 {
		q.ToBlock = new(big.Int).SetUint64(to)
	}
	logs, err := h.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, errs.Translate(err)
	}
	return logs, nil
}
