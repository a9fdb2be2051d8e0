package errs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error codes seen from wallets and nodes.
const (
	codeUserRejected      = 4001
	codeExecutionReverted = 3
	codeLimitExceeded     = -32005
	codeTooManyRequests   = 429
)

// Translate classifies err into the taxonomy. Structured transport data is
// consulted first; free-text matching is the fallback. Errors it cannot
// classify are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ReadTimeout, err, "request timed out")
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return Wrap(RateLimited, err, "rpc endpoint is rate limiting requests")
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return Wrap(UserRejected, err, "transaction rejected in wallet")
		case codeLimitExceeded, codeTooManyRequests:
			return Wrap(RateLimited, err, "rpc endpoint is rate limiting requests")
		case codeExecutionReverted:
			if reason, ok := revertReason(err); ok {
				return fromRevertReason(reason, err)
			}
		}
	}

	return matchMessage(err)
}

// IsRateLimit reports whether err signals that the endpoint throttled us.
func IsRateLimit(err error) bool {
	return CodeOf(Translate(err)) == RateLimited
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}

var revertCodes = []struct {
	substr string
	code   Code
	msg    string
}{
	{"game not in progress", GameNotStarted, "game is not in progress yet"},
	{"vrf not fulfilled", VrfPending, "randomness has not been fulfilled yet, try again in a few seconds"},
	{"not a player", NotAPlayer, "you are not a player in this game, join it first"},
	{"already completed", AlreadyCompleted, "you have already completed this game"},
	{"already joined", ContractReverted, "you have already joined this game"},
	{"insufficient house balance", InsufficientHouseBalance, "house balance cannot cover this stake"},
	{"low house", InsufficientHouseBalance, "house balance cannot cover this stake"},
	{"minimum bet", InvalidStake, "stake is below the minimum bet"},
	{"bet must be at least", InvalidStake, "stake is below the minimum bet of 0.000003 ETH"},
	{"invalid player count", InvalidPlayerCount, "invalid player count"},
	{"players must be between", InvalidPlayerCount, "player count is out of range"},
	{"ai games must have", InvalidPlayerCount, "AI games must have exactly 1 player"},
	{"not enough players", ContractReverted, "not enough players to start the game"},
	{"game cannot be started", ContractReverted, "game cannot be started"},
	{"vrf already fulfilled", ContractReverted, "randomness already fulfilled"},
	{"vrf not requested", ContractReverted, "randomness was never requested for this game"},
}

func fromRevertReason(reason string, cause error) error {
	lower := strings.ToLower(reason)
	for _, rc := range revertCodes {
		if strings.Contains(lower, rc.substr) {
			return Wrap(rc.code, cause, "%s", rc.msg)
		}
	}
	return Wrap(ContractReverted, cause, "contract reverted: %s", reason)
}

// matchMessage is the free-text fallback for transports that do not expose
// structured codes.
func matchMessage(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return Wrap(RateLimited, err, "rpc endpoint is rate limiting requests")
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"), strings.Contains(msg, "action_rejected"):
		return Wrap(UserRejected, err, "transaction rejected in wallet")
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient balance"):
		return Wrap(InsufficientUserBalance, err, "insufficient balance to pay stake and gas")
	case strings.Contains(msg, "abi decoding"), strings.Contains(msg, "could not decode"),
		strings.Contains(msg, "abi: cannot unmarshal"), strings.Contains(msg, "abi: attempting to unmarshall an empty string"):
		return Wrap(DecodeFailure, err, "could not decode contract response")
	case strings.Contains(msg, "execution reverted"):
		reason := msg
		if i := strings.Index(msg, "execution reverted:"); i >= 0 {
			reason = strings.TrimSpace(msg[i+len("execution reverted:"):])
		}
		return fromRevertReason(reason, err)
	}
	return err
}
