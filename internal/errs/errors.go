// Package errs defines the error taxonomy surfaced by the FlipMatch core.
package errs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind groups codes by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindResource
	KindTransport
	KindDomainState
	KindUserAction
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindTransport:
		return "transport"
	case KindDomainState:
		return "domain"
	case KindUserAction:
		return "user"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Code identifies one taxonomy entry.
type Code string

const (
	// Configuration errors are fatal and never retried.
	ContractNotDeployed Code = "ContractNotDeployed"
	AbiNotLoaded        Code = "AbiNotLoaded"
	WrongNetwork        Code = "WrongNetwork"
	NoWalletAccount     Code = "NoWalletAccount"
	WalletNotConnected  Code = "WalletNotConnected"

	// Validation errors are raised before any network call.
	InvalidStake       Code = "InvalidStake"
	InvalidPlayerCount Code = "InvalidPlayerCount"
	InvalidDuration    Code = "InvalidDuration"
	InvalidPassword    Code = "InvalidPassword"
	InvalidName        Code = "InvalidName"
	InvalidGameID      Code = "InvalidGameID"
	InvalidGameType    Code = "InvalidGameType"

	// Resource checks are soft; the contract has the final word.
	InsufficientUserBalance  Code = "InsufficientUserBalance"
	InsufficientHouseBalance Code = "InsufficientHouseBalance"

	// Transport
	RateLimited         Code = "RateLimited"
	ConfirmationTimeout Code = "ConfirmationTimeout"
	ReadTimeout         Code = "ReadTimeout"

	// Domain/state, resolved by re-reading chain state.
	GameNotStarted   Code = "GameNotStarted"
	VrfPending       Code = "VrfPending"
	GameCompleted    Code = "GameCompleted"
	NotAPlayer       Code = "NotAPlayer"
	AlreadyCompleted Code = "AlreadyCompleted"
	GameNotFound     Code = "GameNotFound"
	GameIdUnresolved Code = "GameIdUnresolved"
	ContractReverted Code = "ContractReverted"

	UserRejected  Code = "UserRejected"
	DecodeFailure Code = "DecodeFailure"
)

var kinds = map[Code]Kind{
	ContractNotDeployed:      KindConfiguration,
	AbiNotLoaded:             KindConfiguration,
	WrongNetwork:             KindConfiguration,
	NoWalletAccount:          KindConfiguration,
	WalletNotConnected:       KindConfiguration,
	InvalidStake:             KindValidation,
	InvalidPlayerCount:       KindValidation,
	InvalidDuration:          KindValidation,
	InvalidPassword:          KindValidation,
	InvalidName:              KindValidation,
	InvalidGameID:            KindValidation,
	InvalidGameType:          KindValidation,
	InsufficientUserBalance:  KindResource,
	InsufficientHouseBalance: KindResource,
	RateLimited:              KindTransport,
	ConfirmationTimeout:      KindTransport,
	ReadTimeout:              KindTransport,
	GameNotStarted:           KindDomainState,
	VrfPending:               KindDomainState,
	GameCompleted:            KindDomainState,
	NotAPlayer:               KindDomainState,
	AlreadyCompleted:         KindDomainState,
	GameNotFound:             KindDomainState,
	GameIdUnresolved:         KindDomainState,
	ContractReverted:         KindDomainState,
	UserRejected:             KindUserAction,
	DecodeFailure:            KindDecode,
}

// Kind returns the group the code belongs to.
func (c Code) Kind() Kind { return kinds[c] }

// Error is a classified error. TxHash is set when a transaction was already
// broadcast, so the user can look it up on the explorer.
type Error struct {
	Code   Code
	Msg    string
	TxHash common.Hash
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.TxHash != (common.Hash{}) {
		msg = fmt.Sprintf("%s (tx %s)", msg, e.TxHash.Hex())
	}
	if e.Err != nil && e.Msg == "" {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an error with the given code and message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code, keeping it as the cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithTx returns a copy of e that references the given transaction.
func (e *Error) WithTx(hash common.Hash) *Error {
	cp := *e
	cp.TxHash = hash
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// Sentinels for errors.Is comparisons.
var (
	ErrContractNotDeployed      = &Error{Code: ContractNotDeployed}
	ErrAbiNotLoaded             = &Error{Code: AbiNotLoaded}
	ErrWrongNetwork             = &Error{Code: WrongNetwork}
	ErrNoWalletAccount          = &Error{Code: NoWalletAccount}
	ErrWalletNotConnected       = &Error{Code: WalletNotConnected}
	ErrInvalidStake             = &Error{Code: InvalidStake}
	ErrInvalidPlayerCount       = &Error{Code: InvalidPlayerCount}
	ErrInvalidDuration          = &Error{Code: InvalidDuration}
	ErrInvalidPassword          = &Error{Code: InvalidPassword}
	ErrInvalidName              = &Error{Code: InvalidName}
	ErrInvalidGameID            = &Error{Code: InvalidGameID}
	ErrInvalidGameType          = &Error{Code: InvalidGameType}
	ErrInsufficientUserBalance  = &Error{Code: InsufficientUserBalance}
	ErrInsufficientHouseBalance = &Error{Code: InsufficientHouseBalance}
	ErrRateLimited              = &Error{Code: RateLimited}
	ErrConfirmationTimeout      = &Error{Code: ConfirmationTimeout}
	ErrReadTimeout              = &Error{Code: ReadTimeout}
	ErrGameNotStarted           = &Error{Code: GameNotStarted}
	ErrVrfPending               = &Error{Code: VrfPending}
	ErrGameCompleted            = &Error{Code: GameCompleted}
	ErrNotAPlayer               = &Error{Code: NotAPlayer}
	ErrAlreadyCompleted         = &Error{Code: AlreadyCompleted}
	ErrGameNotFound             = &Error{Code: GameNotFound}
	ErrGameIdUnresolved         = &Error{Code: GameIdUnresolved}
	ErrContractReverted         = &Error{Code: ContractReverted}
	ErrUserRejected             = &Error{Code: UserRejected}
	ErrDecodeFailure            = &Error{Code: DecodeFailure}
)
