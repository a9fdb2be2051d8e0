package flipmatch

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// JoinGame joins gameID paying stake.
func (s *Service) JoinGame(ctx context.Context, gameID uint64, stake *big.Int, password string) (common.Hash, error) {
	id, err := gameIDArg(gameID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := checkStake(stake); err != nil {
		return common.Hash{}, err
	}
	if utf8.RuneCountInString(password) > MaxPasswordLength {
		return common.Hash{}, errs.New(errs.InvalidPassword, "password must be at most %d characters", MaxPasswordLength)
	}
	return s.send(ctx, chain.TxRequest{Method: "joinGame", Args: []interface{}{id, password}, Value: stake})
}

// CommitScore commits the hash of a score for a player-vs-player game.
func (s *Service) CommitScore(ctx context.Context, gameID uint64, commitHash common.Hash) (common.Hash, error) {
	id, err := gameIDArg(gameID)
	if err != nil {
		return common.Hash{}, err
	}
	return s.send(ctx, chain.TxRequest{Method: "commitScore", Args: []interface{}{id, [32]byte(commitHash)}, GasLimit: CommitGasLimit})
}

func (s *Service) RevealScore(ctx context.Context, gameID, flipCount, salt uint64) (common.Hash, error) {
	return s.flipTx(ctx, "revealScore", gameID, flipCount, &salt, CommitGasLimit)
}

func (s *Service) CommitAndReveal(ctx context.Context, gameID, flipCount, salt uint64) (common.Hash, error) {
	return s.flipTx(ctx, "commitAndReveal", gameID, flipCount, &salt, CommitGasLimit)
}

// CommitRevealAndSubmit does the whole score flow in one transaction.
func (s *Service) CommitRevealAndSubmit(ctx context.Context, gameID, flipCount, salt uint64) (common.Hash, error) {
	return s.flipTx(ctx, "commitRevealAndSubmit", gameID, flipCount, &salt, SubmitGasLimit)
}

func (s *Service) flipTx(ctx context.Context, method string, gameID, flipCount uint64, salt *uint64, gas uint64) (common.Hash, error) {
	id, err := gameIDArg(gameID)
	if err != nil {
		return common.Hash{}, err
	}
	args := []interface{}{id, new(big.Int).SetUint64(flipCount)}
	if salt != nil {
		args = append(args, new(big.Int).SetUint64(*salt))
	}
	return s.send(ctx, chain.TxRequest{Method: method, Args: args, GasLimit: gas})
}

// send executes one transaction on a fresh read-write contract.
func (s *Service) send(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	c, _, err := s.write(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := s.execute(ctx, c, req)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// SubmitCompletion submits the final flip count. The game must be in
// progress with randomness fulfilled and the caller a joined player that
// has not completed yet; a revert is explained by re-reading that state.
func (s *Service) SubmitCompletion(ctx context.Context, gameID, flipCount uint64) (common.Hash, error) {
	id, err := gameIDArg(gameID)
	if err != nil {
		return common.Hash{}, err
	}
	c, account, err := s.write(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	g, err := s.source(c).LoadGame(ctx, gameID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := readyForSubmit(g); err != nil {
		return common.Hash{}, err
	}
	if err := s.checkSubmitter(ctx, c, g, account); err != nil {
		return common.Hash{}, err
	}

	receipt, err := s.execute(ctx, c, chain.TxRequest{
		Method:   "submitCompletion",
		Args:     []interface{}{id, new(big.Int).SetUint64(flipCount)},
		GasLimit: SubmitGasLimit,
	})
	if err != nil {
		if receipt != nil {
			return receipt.TxHash, s.explainRevert(ctx, c, gameID, account, receipt.TxHash, err)
		}
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func readyForSubmit(g game.Game) *errs.Error {
	switch g.Status {
	case game.StatusInProgress:
	case game.StatusCreated:
		return errs.New(errs.GameNotStarted, "game %d has not started yet", g.ID)
	case game.StatusWaitingVRF:
		return errs.New(errs.VrfPending, "game %d is waiting for randomness, try again in a few seconds", g.ID)
	case game.StatusCancelled:
		return errs.New(errs.GameCompleted, "game %d was cancelled", g.ID)
	default:
		return errs.New(errs.GameCompleted, "game %d is already %s", g.ID, g.Status)
	}
	if !g.VRFFulfilled {
		return errs.New(errs.VrfPending, "randomness for game %d is not fulfilled yet", g.ID)
	}
	return nil
}

// checkSubmitter verifies account may submit. AI games tolerate an
// unreadable or unjoined player record since the creator joins on creation.
func (s *Service) checkSubmitter(ctx context.Context, c Contract, g game.Game, account common.Address) error {
	ai := g.GameType == game.AIVsPlayer
	raw, err := c.GetPlayer(ctx, g.ID, account)
	if err != nil {
		if ai {
			s.log.Debug("Player lookup failed for AI game, submitting anyway", "game", g.ID, "err", err)
			return nil
		}
		return errs.Wrap(errs.NotAPlayer, err, "you are not a player in game %d, join it first", g.ID)
	}
	p := game.NormalizePlayer(raw, account)
	if !p.HasJoined && !ai {
		return errs.New(errs.NotAPlayer, "you are not a player in game %d, join it first", g.ID)
	}
	if p.HasCompleted {
		return errs.New(errs.AlreadyCompleted, "you have already completed game %d", g.ID)
	}
	return nil
}

// explainRevert re-reads game and player state after a reverted submit and
// returns the most specific error it can.
func (s *Service) explainRevert(ctx context.Context, c Contract, gameID uint64, account common.Address, tx common.Hash, cause error) error {
	g, err := s.source(c).LoadGame(ctx, gameID)
	if err != nil {
		return cause
	}
	if err := readyForSubmit(g); err != nil {
		return err.WithTx(tx)
	}
	raw, err := c.GetPlayer(ctx, gameID, account)
	if err != nil {
		if g.GameType == game.AIVsPlayer {
			return errs.Wrap(errs.ContractReverted, cause, "player record not found yet, it may still be indexing, try again shortly").WithTx(tx)
		}
		return errs.Wrap(errs.NotAPlayer, cause, "you are not a player in game %d, join it first", gameID).WithTx(tx)
	}
	p := game.NormalizePlayer(raw, account)
	if !p.HasJoined {
		return errs.New(errs.NotAPlayer, "you are not a player in game %d, join it first", gameID).WithTx(tx)
	}
	if p.HasCompleted {
		return errs.New(errs.AlreadyCompleted, "you have already completed game %d", gameID).WithTx(tx)
	}
	return cause
}

func (s *Service) CancelGame(ctx context.Context, gameID uint64) (common.Hash, error) {
	id, err := gameIDArg(gameID)
	if err != nil {
		return common.Hash{}, err
	}
	return s.send(ctx, chain.TxRequest{Method: "cancelGame", Args: []interface{}{id}})
}

// CreateRematch opens a new game from a finished one. An empty name
// becomes "Rematch #<unix millis>".
func (s *Service) CreateRematch(ctx context.Context, originalID uint64, name string, stake *big.Int) (common.Hash, error) {
	id, err := gameIDArg(originalID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := checkStake(stake); err != nil {
		return common.Hash{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Rematch #%d", time.Now().UnixMilli())
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return common.Hash{}, errs.New(errs.InvalidName, "game name must be at most %d characters", MaxNameLength)
	}
	return s.send(ctx, chain.TxRequest{Method: "createRematch", Args: []interface{}{id, name}, Value: stake})
}

// FulfillVRF answers the randomness request of gameID with one random word.
// Only the contract owner can do this; it stands in for the oracle on test
// deployments.
func (s *Service) FulfillVRF(ctx context.Context, gameID uint64) (common.Hash, error) {
	if _, err := gameIDArg(gameID); err != nil {
		return common.Hash{}, err
	}
	c, _, err := s.write(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	g, err := s.source(c).LoadGame(ctx, gameID)
	if err != nil {
		return common.Hash{}, err
	}
	if g.VRFFulfilled {
		return common.Hash{}, errs.New(errs.ContractReverted, "randomness for game %d is already fulfilled", gameID)
	}
	requestID, ok := parseRequestID(g.VRFRequestID)
	if !ok || requestID.Sign() == 0 {
		return common.Hash{}, errs.New(errs.VrfPending, "game %d has no randomness request yet", gameID)
	}
	word, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := s.execute(ctx, c, chain.TxRequest{Method: "fulfillVRF", Args: []interface{}{requestID, []*big.Int{word}}})
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// parseRequestID reads a decimal or 0x-prefixed hex request id.
func parseRequestID(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "0x") {
		if len(s) == 2 {
			return nil, false
		}
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}
