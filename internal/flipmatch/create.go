package flipmatch

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/discovery"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
)

const (
	MaxNameLength     = 50
	MaxPasswordLength = 50
	MinPVPPlayers     = 2
	MaxPVPPlayers     = 5
	MaxDuration       = 720 * time.Hour
)

var (
	// MinBet is the smallest accepted stake, 0.000003 ETH.
	MinBet = game.MustEther("0.000003")
	// MaxStake is the largest accepted stake, 500 ETH.
	MaxStake = game.MustEther("500")
	// GasReserve is kept aside from the balance for gas when creating.
	GasReserve = game.MustEther("0.001")
)

// CreateParams describes a new game.
type CreateParams struct {
	Name       string
	GameType   game.GameType
	MaxPlayers uint64
	Duration   time.Duration
	Password   string
	Stake      *big.Int
}

// CreateResult reports a confirmed creation. When Resolved is false GameID
// is only the best guess from the game counter.
type CreateResult struct {
	TxHash   common.Hash
	GameID   uint64
	Resolved bool
}

// Validate checks p without touching the network.
func (p CreateParams) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(p.Name)) > MaxNameLength {
		return errs.New(errs.InvalidName, "game name must be at most %d characters", MaxNameLength)
	}
	if err := checkStake(p.Stake); err != nil {
		return err
	}
	if p.Stake.Cmp(MaxStake) > 0 {
		return errs.New(errs.InvalidStake, "stake must be at most %s ETH", game.FormatEther(MaxStake))
	}
	switch p.GameType {
	case game.AIVsPlayer:
		if p.MaxPlayers != 1 {
			return errs.New(errs.InvalidPlayerCount, "AI games must have exactly 1 player, got %d", p.MaxPlayers)
		}
		if p.Duration != 0 {
			return errs.New(errs.InvalidDuration, "AI games have no duration")
		}
	case game.PlayerVsPlayer:
		if p.MaxPlayers < MinPVPPlayers || p.MaxPlayers > MaxPVPPlayers {
			return errs.New(errs.InvalidPlayerCount, "player-vs-player games need %d to %d players, got %d", MinPVPPlayers, MaxPVPPlayers, p.MaxPlayers)
		}
		if p.Duration <= 0 || p.Duration > MaxDuration {
			return errs.New(errs.InvalidDuration, "duration must be between 0 and %s, got %s", MaxDuration, p.Duration)
		}
	default:
		return errs.New(errs.InvalidGameType, "unknown game type %d", p.GameType)
	}
	if utf8.RuneCountInString(p.Password) > MaxPasswordLength {
		return errs.New(errs.InvalidPassword, "password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

func checkStake(stake *big.Int) error {
	if stake == nil || stake.Sign() <= 0 {
		return errs.New(errs.InvalidStake, "stake must be greater than 0")
	}
	if stake.Cmp(MinBet) < 0 {
		return errs.New(errs.InvalidStake, "stake must be at least %s ETH", game.FormatEther(MinBet))
	}
	return nil
}

// houseReserve is what the house must hold to pay a player who beats the
// AI: the payout minus the stake the player brings.
func houseReserve(stake *big.Int) *big.Int {
	r := new(big.Int).Mul(stake, big.NewInt(100-game.HouseEdgePct))
	return r.Quo(r, big.NewInt(100))
}

// CreateGame validates p, sends createGame, waits for confirmation and then
// resolves the new id, records it in the creator's cache and announces it.
// An id that cannot be resolved is still announced, marked unresolved, but
// kept out of the creator's cache.
// Name, duration and password are validated for the UI but the deployed
// contract only takes game type and player count.
func (s *Service) CreateGame(ctx context.Context, p CreateParams) (CreateResult, error) {
	if err := p.Validate(); err != nil {
		return CreateResult{}, err
	}
	c, account, err := s.write(ctx)
	if err != nil {
		return CreateResult{}, err
	}

	balance, err := c.Balance(ctx, account)
	if err != nil {
		return CreateResult{}, fmt.Errorf("read balance: %w", err)
	}
	need := new(big.Int).Add(p.Stake, GasReserve)
	if balance.Cmp(need) < 0 {
		return CreateResult{}, errs.New(errs.InsufficientUserBalance,
			"balance %s ETH is below %s ETH (stake plus %s ETH gas)", game.FormatEther(balance), game.FormatEther(need), game.FormatEther(GasReserve))
	}
	if p.GameType == game.AIVsPlayer {
		if err := s.checkHouse(ctx, c, p.Stake); err != nil {
			return CreateResult{}, err
		}
	}

	receipt, err := s.execute(ctx, c, chain.TxRequest{
		Method: "createGame",
		Args:   []interface{}{uint8(p.GameType), new(big.Int).SetUint64(p.MaxPlayers)},
		Value:  p.Stake,
		Lite:   true,
	})
	if err != nil {
		return CreateResult{}, err
	}
	res := CreateResult{TxHash: receipt.TxHash}

	src := s.source(c)
	id, err := discovery.NewLocator(src, s.log).WithSleep(s.sleep).WithWaits(s.locateWaits).Locate(ctx, receipt, account)
	switch {
	case errs.CodeOf(err) == errs.GameIdUnresolved:
		s.log.Warn("Game created but id not indexed yet", "tx", receipt.TxHash, "guess", id)
		res.GameID = id
		s.announce(ctx, c.ChainID(), id, receipt.TxHash, false)
		return res, nil
	case err != nil:
		return res, err
	}
	res.GameID, res.Resolved = id, true
	s.recordCreated(ctx, src, c.ChainID(), account, p, receipt, id)
	return res, nil
}

// checkHouse is a soft pre-check: an unreadable house balance only logs.
func (s *Service) checkHouse(ctx context.Context, c Contract, stake *big.Int) error {
	house, err := c.HouseBalance(ctx)
	if err != nil {
		s.log.Warn("House balance unavailable, letting the contract decide", "err", err)
		return nil
	}
	if need := houseReserve(stake); house.Cmp(need) < 0 {
		return errs.New(errs.InsufficientHouseBalance,
			"house balance %s ETH cannot cover %s ETH, try a smaller stake", game.FormatEther(house), game.FormatEther(need))
	}
	return nil
}

// recordCreated caches and announces a new game. Failures only log; the
// creation itself already succeeded.
func (s *Service) recordCreated(ctx context.Context, src *source, chainID uint64, creator common.Address, p CreateParams, receipt *types.Receipt, id uint64) {
	g, err := src.LoadGame(ctx, id)
	if err != nil {
		s.log.Debug("New game not readable yet, caching a placeholder", "game", id, "err", err)
		g = game.Game{
			ID:             id,
			Name:           strings.TrimSpace(p.Name),
			Creator:        creator,
			GameType:       p.GameType,
			Status:         game.StatusCreated,
			Stake:          new(big.Int).Set(p.Stake),
			TotalPrize:     new(big.Int).Set(p.Stake),
			MaxPlayers:     p.MaxPlayers,
			CurrentPlayers: 1,
			CreatedAt:      uint64(time.Now().Unix()),
			Players:        []common.Address{creator},
		}
		if g.Name == "" {
			g.Name = fmt.Sprintf("Game #%d", id)
		}
	}
	if _, err := s.cache.Reconcile(ctx, cache.Key{ChainID: chainID, Player: creator}, []game.Game{g}); err != nil {
		s.log.Warn("Caching new game failed", "game", id, "err", err)
	}

	s.announce(ctx, chainID, id, receipt.TxHash, true)
	s.log.Info("Game created", "game", id, "tx", receipt.TxHash, "creator", creator)
}

// announce records id as the last created game and publishes it. An
// unresolved id is the counter guess and is marked as such.
func (s *Service) announce(ctx context.Context, chainID, id uint64, tx common.Hash, resolved bool) {
	n := notify.NewNotification(chainID, id)
	n.TxHash, n.Unresolved = tx, !resolved
	rec := cache.LastCreated{ChainID: chainID, GameID: id, Timestamp: n.Timestamp, TxHash: tx, Unresolved: !resolved}
	if err := s.cache.Store().SaveLastCreated(ctx, rec); err != nil {
		s.log.Warn("Recording last created game failed", "game", id, "err", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n); err != nil {
			s.log.Warn("Publishing game created failed", "game", id, "err", err)
		}
	}
}
