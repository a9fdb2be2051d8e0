package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var contractAddr = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

type fakeBackend struct {
	Backend
	chainID  *big.Int
	callData []byte
	callErr  error
	logs     []types.Log
	queries  []ethereum.FilterQuery
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callData, f.callErr
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, nil
}

func testAdapter(t *testing.T, backend Backend, flipMatch string) *Adapter {
	t.Helper()
	networks, err := LoadNetworks(nil)
	require.NoError(t, err)
	networks.Override("", flipMatch)
	abis, err := LoadABIs(nil)
	require.NoError(t, err)
	dial := func(context.Context, string) (Backend, error) { return backend, nil }
	return NewAdapter(networks, abis, dial, log.NewLogger(log.DiscardHandler()))
}

func connectedSession(t *testing.T, chainID int64) *Session {
	t.Helper()
	s, err := NewKeySession(testKey, &fakeBackend{chainID: big.NewInt(chainID)})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestLoadNetworks(t *testing.T) {
	networks, err := LoadNetworks(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(BaseMainnetChainID), networks.Supported)
	def := networks.Default()
	require.Equal(t, "https://mainnet.base.org", def.RPCURL)
	require.Equal(t, common.Address{}, def.FlipMatchAddress())

	networks.Override("https://rpc.example", contractAddr.Hex())
	def = networks.Default()
	require.Equal(t, "https://rpc.example", def.RPCURL)
	require.Equal(t, contractAddr, def.FlipMatchAddress())

	_, err = LoadNetworks([]byte("supported: 1\nnetworks: []\n"))
	require.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	s := connectedSession(t, BaseMainnetChainID)
	acct, ok := s.CurrentAccount()
	require.True(t, ok)
	require.NotEqual(t, common.Address{}, acct)
	require.Equal(t, int64(BaseMainnetChainID), s.ChainID().Int64())

	s.Disconnect()
	_, ok = s.CurrentAccount()
	require.False(t, ok)
	require.Nil(t, s.ChainID())

	_, err := NewKeySession("not-a-key", nil)
	require.Error(t, err)
}

func TestAdapterReadWritePreconditions(t *testing.T) {
	ctx := context.Background()
	a := testAdapter(t, &fakeBackend{chainID: big.NewInt(BaseMainnetChainID)}, contractAddr.Hex())

	_, err := a.Handle(ctx, ReadWrite, nil, 0)
	require.Equal(t, errs.WalletNotConnected, errs.CodeOf(err))

	s := connectedSession(t, BaseMainnetChainID)
	s.Disconnect()
	_, err = a.Handle(ctx, ReadWrite, s, 0)
	require.Equal(t, errs.NoWalletAccount, errs.CodeOf(err))

	wrong := connectedSession(t, 1)
	_, err = a.Handle(ctx, ReadWrite, wrong, 0)
	require.Equal(t, errs.WrongNetwork, errs.CodeOf(err))

	h, err := a.Handle(ctx, ReadWrite, connectedSession(t, BaseMainnetChainID), 0)
	require.NoError(t, err)
	require.Equal(t, ReadWrite, h.Mode())
	require.Equal(t, contractAddr, h.Address())
	_, ok := h.Account()
	require.True(t, ok)
}

func TestAdapterConfigurationErrors(t *testing.T) {
	ctx := context.Background()
	a := testAdapter(t, &fakeBackend{}, "")
	_, err := a.Handle(ctx, ReadOnly, nil, BaseMainnetChainID)
	require.Equal(t, errs.ContractNotDeployed, errs.CodeOf(err))
	require.Equal(t, errs.KindConfiguration, errs.KindOf(err))

	a = testAdapter(t, &fakeBackend{}, contractAddr.Hex())
	a.abis, err = LoadABIs([]byte("[]"))
	require.NoError(t, err)
	_, err = a.Handle(ctx, ReadOnly, nil, BaseMainnetChainID)
	require.Equal(t, errs.AbiNotLoaded, errs.CodeOf(err))
}

func TestAdapterReadOnlyFallsBackToSupportedChain(t *testing.T) {
	a := testAdapter(t, &fakeBackend{}, contractAddr.Hex())
	h, err := a.Handle(context.Background(), ReadOnly, nil, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(BaseMainnetChainID), h.ChainID())

	_, err = h.Transact(context.Background(), TxRequest{Method: "cancelGame"})
	require.Equal(t, errs.WalletNotConnected, errs.CodeOf(err))
}

type liteGameTuple struct {
	Id             *big.Int
	GameType       uint8
	Status         uint8
	Creator        common.Address
	Stake          *big.Int
	TotalPrize     *big.Int
	MaxPlayers     *big.Int
	CurrentPlayers *big.Int
	StartedAt      *big.Int
	Winner         common.Address
	WinnerScore    *big.Int
	VrfRequestId   *big.Int
	VrfFulfilled   bool
	PasswordHash   [32]byte
}

func TestGetGameDecodesLiteSchema(t *testing.T) {
	abis, err := LoadABIs(nil)
	require.NoError(t, err)
	creator := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	data, err := abis.Lite.Methods["getGame"].Outputs.Pack(liteGameTuple{
		Id: big.NewInt(7), GameType: 1, Status: 2, Creator: creator,
		Stake: big.NewInt(1000), TotalPrize: big.NewInt(2000), MaxPlayers: big.NewInt(2),
		CurrentPlayers: big.NewInt(2), StartedAt: big.NewInt(1700000000),
		WinnerScore: big.NewInt(0), VrfRequestId: big.NewInt(3), VrfFulfilled: true,
	})
	require.NoError(t, err)

	a := testAdapter(t, &fakeBackend{callData: data}, contractAddr.Hex())
	h, err := a.Handle(context.Background(), ReadOnly, nil, 0)
	require.NoError(t, err)

	raw, err := h.GetGame(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, game.SchemaLite, raw.Schema)
	require.True(t, raw.Fields.Has("winnerScore"))

	g := game.NewNormalizer(nil, log.NewLogger(log.DiscardHandler())).Game(context.Background(), raw)
	require.Equal(t, uint64(7), g.ID)
	require.Equal(t, game.StatusInProgress, g.Status)
	require.Equal(t, creator, g.Creator)
	require.True(t, g.VRFFulfilled)
}

func TestGetGameEmptyResponseIsDecodeFailure(t *testing.T) {
	a := testAdapter(t, &fakeBackend{}, contractAddr.Hex())
	h, err := a.Handle(context.Background(), ReadOnly, nil, 0)
	require.NoError(t, err)
	_, err = h.GetGame(context.Background(), 1)
	require.Equal(t, errs.DecodeFailure, errs.CodeOf(err))
}

func TestParseGameCreated(t *testing.T) {
	abis, err := LoadABIs(nil)
	require.NoError(t, err)
	ev := abis.Full.Events[EventGameCreated]
	data, err := ev.Inputs.NonIndexed().Pack(uint8(1), big.NewInt(5000))
	require.NoError(t, err)
	creator := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	txHash := common.HexToHash("0x01")

	lg := types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{ev.ID, common.BigToHash(big.NewInt(42)), common.BytesToHash(creator.Bytes())},
		Data:        data,
		BlockNumber: 100,
		TxHash:      txHash,
	}
	got, ok := ParseGameCreated(abis, contractAddr, &lg)
	require.True(t, ok)
	require.Equal(t, uint64(42), got.GameID)
	require.Equal(t, creator, got.Creator)
	require.Equal(t, game.PlayerVsPlayer, got.GameType)
	require.Equal(t, int64(5000), got.Stake.Int64())

	_, ok = ParseGameCreated(abis, common.HexToAddress("0x01"), &lg)
	require.False(t, ok)

	backend := &fakeBackend{logs: []types.Log{lg}}
	h, err := testAdapter(t, backend, contractAddr.Hex()).Handle(context.Background(), ReadOnly, nil, 0)
	require.NoError(t, err)
	found, ok, err := h.GameCreatedInBlock(context.Background(), 100, txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), found.GameID)
	require.Len(t, backend.queries, 1)
	require.Equal(t, int64(100), backend.queries[0].FromBlock.Int64())

	receipt := &types.Receipt{Logs: []*types.Log{&lg}}
	fromReceipt, ok := h.GameCreatedFromReceipt(receipt)
	require.True(t, ok)
	require.Equal(t, uint64(42), fromReceipt.GameID)
}

type fakePending struct {
	attempts int
	errs     []error
	receipt  *types.Receipt
}

func (p *fakePending) Hash() common.Hash { return common.HexToHash("0xfeed") }

func (p *fakePending) Wait(context.Context) (*types.Receipt, error) {
	p.attempts++
	if p.attempts <= len(p.errs) {
		return nil, p.errs[p.attempts-1]
	}
	return p.receipt, nil
}

func recordingWaiter(slept *[]time.Duration) *Waiter {
	return NewWaiter(log.NewLogger(log.DiscardHandler())).WithSleep(func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	})
}

func TestAwaitConfirmationBacksOffOnRateLimit(t *testing.T) {
	var slept []time.Duration
	limited := rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}
	p := &fakePending{errs: []error{limited, limited, limited, limited, limited, limited}}

	_, err := recordingWaiter(&slept).AwaitConfirmation(context.Background(), p, "createGame")
	require.Equal(t, errs.ConfirmationTimeout, errs.CodeOf(err))
	require.Contains(t, err.Error(), p.Hash().Hex())
	require.Equal(t, 5, p.attempts)

	var total time.Duration
	for _, d := range slept {
		total += d
	}
	require.GreaterOrEqual(t, total, 62*time.Second)
}

func TestAwaitConfirmationRecoversAfterRateLimit(t *testing.T) {
	var slept []time.Duration
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)}
	p := &fakePending{errs: []error{errors.New("429 Too Many Requests")}, receipt: receipt}

	got, err := recordingWaiter(&slept).AwaitConfirmation(context.Background(), p, "joinGame")
	require.NoError(t, err)
	require.Same(t, receipt, got)
	require.Equal(t, 2, p.attempts)
	require.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestAwaitConfirmationPropagatesOtherErrors(t *testing.T) {
	var slept []time.Duration
	p := &fakePending{errs: []error{errors.New("connection refused")}}

	_, err := recordingWaiter(&slept).AwaitConfirmation(context.Background(), p, "cancelGame")
	require.EqualError(t, err, "connection refused")
	require.Equal(t, 1, p.attempts)
	require.Empty(t, slept)
}
