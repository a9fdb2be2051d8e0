package game

import (
	"context"
	"errors"
	"math"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	joiner  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

type stubRoster struct {
	players []common.Address
	err     error
	block   bool
}

func (s *stubRoster) GetGamePlayers(ctx context.Context, _ uint64) ([]common.Address, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.players, s.err
}

func quietNormalizer(r RosterFetcher) *Normalizer {
	return NewNormalizer(r, log.NewLogger(log.DiscardHandler()))
}

func TestWinnerPrize(t *testing.T) {
	player := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	tests := []struct {
		name string
		game Game
		want *big.Int
	}{
		{
			name: "ai game won by player",
			game: Game{GameType: AIVsPlayer, Status: StatusCompleted, Winner: player, Stake: MustEther("1")},
			want: MustEther("1.95"),
		},
		{
			name: "ai game won by house",
			game: Game{GameType: AIVsPlayer, Status: StatusCompleted, Winner: HouseAddress, Stake: MustEther("1")},
			want: MustEther("1"),
		},
		{
			name: "pvp game",
			game: Game{GameType: PlayerVsPlayer, Status: StatusCompleted, Winner: player, TotalPrize: MustEther("10")},
			want: MustEther("9"),
		},
		{
			name: "tied pvp game",
			game: Game{GameType: PlayerVsPlayer, Status: StatusTied, Winner: player, TotalPrize: MustEther("2")},
			want: MustEther("1.8"),
		},
		{
			name: "in progress",
			game: Game{GameType: PlayerVsPlayer, Status: StatusInProgress, Winner: player, TotalPrize: MustEther("10")},
		},
		{
			name: "no winner",
			game: Game{GameType: AIVsPlayer, Status: StatusCompleted, Stake: MustEther("1")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WinnerPrize(&tt.game)
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.Equal(t, 0, tt.want.Cmp(got), "want %s got %s", FormatEther(tt.want), FormatEther(got))
		})
	}
}

func TestNormalizeLiteSchema(t *testing.T) {
	raw := NewRawGame(Fields{
		"id":             big.NewInt(7),
		"gameType":       uint8(1),
		"status":         uint8(StatusCompleted),
		"creator":        creator,
		"stake":          MustEther("0.5"),
		"totalPrize":     MustEther("1"),
		"maxPlayers":     big.NewInt(2),
		"currentPlayers": big.NewInt(2),
		"startedAt":      big.NewInt(1700000000),
		"winner":         joiner,
		"winnerScore":    big.NewInt(14),
		"vrfRequestId":   big.NewInt(99),
		"vrfFulfilled":   true,
	})
	require.Equal(t, SchemaLite, raw.Schema)

	g := quietNormalizer(&stubRoster{players: []common.Address{joiner}}).Game(context.Background(), raw)
	require.Equal(t, uint64(7), g.ID)
	require.Equal(t, "Game #7", g.Name)
	require.Equal(t, PlayerVsPlayer, g.GameType)
	require.Equal(t, uint64(1700000000), g.CreatedAt)
	require.Equal(t, uint64(1700000000), g.CompletedAt)
	require.Equal(t, uint64(14), g.WinnerFlipCount)
	require.Equal(t, uint64(14), g.WinnerFinalScore)
	require.Equal(t, "99", g.VRFRequestID)
	require.Equal(t, []common.Address{creator, joiner}, g.Players)
	require.Empty(t, g.CardOrder)
	require.Equal(t, 0, MustEther("0.9").Cmp(g.WinnerPrize))
}

func TestNormalizeFullSchema(t *testing.T) {
	var pw [32]byte
	pw[31] = 1
	raw := NewRawGame(Fields{
		"id":              big.NewInt(3),
		"name":            "  Friday duel ",
		"gameType":        uint8(0),
		"status":          uint8(StatusInProgress),
		"creator":         creator,
		"stake":           MustEther("0.01"),
		"maxPlayers":      big.NewInt(1),
		"currentPlayers":  big.NewInt(1),
		"createdAt":       big.NewInt(10),
		"startedAt":       big.NewInt(20),
		"completedAt":     big.NewInt(0),
		"winnerFlipCount": big.NewInt(0),
		"cardOrder":       []uint8{0, 5, 11, 12, 200},
		"passwordHash":    pw,
	})
	require.Equal(t, SchemaFull, raw.Schema)

	g := quietNormalizer(nil).Game(context.Background(), raw)
	require.Equal(t, "Friday duel", g.Name)
	require.Equal(t, uint64(10), g.CreatedAt)
	require.Equal(t, []int{0, 5, 11, 0, 0}, g.CardOrder)
	require.True(t, g.HasPassword)
	require.Equal(t, []common.Address{creator}, g.Players)
	require.Nil(t, g.WinnerPrize)
}

func TestNormalizeDefaults(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 60)
	raw := NewRawGame(Fields{
		"id":         big.NewInt(12),
		"gameType":   uint8(9),
		"status":     uint8(42),
		"maxPlayers": big.NewInt(0),
		"startedAt":  huge,
		"winner":     joiner,
	})
	g := quietNormalizer(nil).Game(context.Background(), raw)
	require.Equal(t, AIVsPlayer, g.GameType)
	require.Equal(t, StatusCreated, g.Status)
	require.Equal(t, uint64(1), g.MaxPlayers)
	require.Equal(t, uint64(0), g.StartedAt)
	require.Equal(t, common.Address{}, g.Winner)

	pvp := quietNormalizer(nil).Game(context.Background(), NewRawGame(Fields{"id": big.NewInt(1), "gameType": uint8(1)}))
	require.Equal(t, uint64(2), pvp.MaxPlayers)
}

func TestRosterFallsBackToCreator(t *testing.T) {
	raw := NewRawGame(Fields{"id": big.NewInt(5), "creator": creator, "winnerScore": big.NewInt(0)})

	n := quietNormalizer(&stubRoster{block: true}).WithRosterTimeout(20 * time.Millisecond)
	start := time.Now()
	g := n.Game(context.Background(), raw)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, []common.Address{creator}, g.Players)

	g = quietNormalizer(&stubRoster{err: errors.New("abi decoding")}).Game(context.Background(), raw)
	require.Equal(t, []common.Address{creator}, g.Players)
}

func TestNormalizeMalformedInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	keys := []string{"id", "name", "gameType", "status", "creator", "stake", "totalPrize",
		"maxPlayers", "currentPlayers", "createdAt", "startedAt", "completedAt", "endTime",
		"winner", "winnerFlipCount", "winnerFinalScore", "winnerScore", "vrfRequestId",
		"vrfFulfilled", "cardOrder", "passwordHash"}
	overflow := new(big.Int).Lsh(big.NewInt(1), 300)
	values := []interface{}{
		nil, "", "0x", "garbage", -1, int64(math.MinInt64), uint64(math.MaxUint64),
		big.NewInt(-5), overflow, new(big.Int).Lsh(big.NewInt(1), 53), (*big.Int)(nil),
		math.NaN(), math.Inf(1), 3.5, true, struct{}{}, []interface{}{nil, "x", overflow},
		[]uint8{1, 2, 255}, map[string]int{"a": 1}, common.Address{}, [32]byte{},
		[]byte{0, 0, 1}, "0x00000000000000000000000000000000000000c1",
	}
	n := quietNormalizer(nil)
	for i := 0; i < 100; i++ {
		f := Fields{}
		for _, k := range keys {
			if rng.Intn(3) == 0 {
				continue
			}
			f[k] = values[rng.Intn(len(values))]
		}
		raw := RawGame{Schema: Schema(rng.Intn(3)), Fields: f}
		g := n.Game(context.Background(), raw)

		require.NotEmpty(t, g.Name)
		require.NotNil(t, g.Stake)
		require.NotNil(t, g.TotalPrize)
		require.NotNil(t, g.CardOrder)
		require.NotNil(t, g.Players)
		require.LessOrEqual(t, g.ID, uint64(MaxSafeInteger))
		require.LessOrEqual(t, g.CurrentPlayers, g.MaxPlayers)
		if !g.Status.Finished() {
			require.Equal(t, common.Address{}, g.Winner)
		}
	}
}

func TestNormalizePlayer(t *testing.T) {
	p := NormalizePlayer(RawPlayer{Fields: Fields{
		"flipCount":    big.NewInt(18),
		"finalScore":   big.NewInt(640),
		"hasCompleted": true,
		"hasJoined":    false,
		"state":        uint8(PlayerSubmitted),
	}}, joiner)
	require.Equal(t, joiner, p.Address)
	require.Equal(t, uint64(18), p.FlipCount)
	require.True(t, p.HasJoined)
	require.Equal(t, PlayerSubmitted, p.State)

	absent := NormalizePlayer(RawPlayer{}, joiner)
	require.Equal(t, AbsentPlayer(joiner), absent)
	require.False(t, absent.HasJoined)
	require.Equal(t, PlayerNotStarted, absent.State)
}

func TestFieldsOfTaggedStruct(t *testing.T) {
	tuple := struct {
		Id          *big.Int `json:"id"`
		WinnerScore *big.Int `json:"winnerScore"`
		Creator     common.Address
	}{Id: big.NewInt(4), WinnerScore: big.NewInt(2), Creator: creator}

	f := FieldsOf(&tuple)
	require.True(t, f.Has("id"))
	require.True(t, f.Has("winnerScore"))
	require.True(t, f.Has("creator"))
	require.Equal(t, SchemaLite, DetectSchema(f))
	require.Empty(t, FieldsOf(nil))
	require.Empty(t, FieldsOf(42))
}

func TestEtherConversion(t *testing.T) {
	wei, err := ParseEther("0.000003")
	require.NoError(t, err)
	require.Equal(t, "3000000000000", wei.String())
	require.Equal(t, "0.000003", FormatEther(wei))
	require.Equal(t, "1.95", FormatEther(MustEther("1.95")))
	require.Equal(t, "500", FormatEther(MustEther("500")))

	_, err = ParseEther("0.0000000000000000001")
	require.Error(t, err)
	_, err = ParseEther("-1")
	require.Error(t, err)
	_, err = ParseEther("abc")
	require.Error(t, err)
}

func TestParseEtherAcceptsOnlyDecimals(t *testing.T) {
	for in, want := range map[string]string{
		"1":                    "1000000000000000000",
		" 0.5 ":                "500000000000000000",
		"0.000000000000000001": "1",
		"007.10":               "7100000000000000000",
	} {
		wei, err := ParseEther(in)
		require.NoError(t, err, in)
		require.Equal(t, want, wei.String(), in)
	}
	for _, in := range []string{"1e1000000", "1E3", "3/2", "0x10", "+1", ".5", "1.", "1_000", "", "1.2.3"} {
		_, err := ParseEther(in)
		require.Error(t, err, in)
	}
}
