// Package game holds the canonical FlipMatch records and the decoding of
// raw contract responses into them.
package game

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type GameType uint8

const (
	AIVsPlayer GameType = iota
	PlayerVsPlayer
)

func (t GameType) String() string {
	if t == PlayerVsPlayer {
		return "PLAYER_VS_PLAYER"
	}
	return "AI_VS_PLAYER"
}

type Status uint8

const (
	StatusCreated Status = iota
	StatusWaitingVRF
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusTied
)

var statusNames = [...]string{"CREATED", "WAITING_VRF", "IN_PROGRESS", "COMPLETED", "CANCELLED", "TIED"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Finished reports whether the game can carry a winner.
func (s Status) Finished() bool { return s == StatusCompleted || s == StatusTied }

type PlayerState uint8

const (
	PlayerNotStarted PlayerState = iota
	PlayerPlaying
	PlayerSubmitted
)

func (s PlayerState) String() string {
	switch s {
	case PlayerPlaying:
		return "PLAYING"
	case PlayerSubmitted:
		return "SUBMITTED"
	default:
		return "NOT_STARTED"
	}
}

// HouseAddress is the winner recorded when the AI beats the player.
var HouseAddress = common.HexToAddress("0x1111111111111111111111111111111111111111")

// Game is one match as mirrored from the chain. Amounts are in wei.
type Game struct {
	ID               uint64           `json:"id"`
	Name             string           `json:"name"`
	Creator          common.Address   `json:"creator"`
	GameType         GameType         `json:"gameType"`
	Status           Status           `json:"status"`
	Stake            *big.Int         `json:"stake"`
	TotalPrize       *big.Int         `json:"totalPrize"`
	MaxPlayers       uint64           `json:"maxPlayers"`
	CurrentPlayers   uint64           `json:"currentPlayers"`
	CreatedAt        uint64           `json:"createdAt"`
	StartedAt        uint64           `json:"startedAt"`
	CompletedAt      uint64           `json:"completedAt"`
	EndTime          uint64           `json:"endTime"`
	Winner           common.Address   `json:"winner"`
	WinnerFlipCount  uint64           `json:"winnerFlipCount"`
	WinnerFinalScore uint64           `json:"winnerFinalScore"`
	WinnerPrize      *big.Int         `json:"winnerPrize,omitempty"`
	VRFRequestID     string           `json:"vrfRequestId"`
	VRFFulfilled     bool             `json:"vrfFulfilled"`
	CardOrder        []int            `json:"cardOrder"`
	Players          []common.Address `json:"players"`
	HasPassword      bool             `json:"hasPassword"`
	PrizeTxHash      *common.Hash     `json:"prizeTxHash,omitempty"`
	Schema           Schema           `json:"schema"`
}

// HasPlayer reports whether addr is the creator or on the roster.
func (g *Game) HasPlayer(addr common.Address) bool {
	if g.Creator == addr {
		return true
	}
	for _, p := range g.Players {
		if p == addr {
			return true
		}
	}
	return false
}

// Player is one participant's state within a game.
type Player struct {
	Address      common.Address `json:"playerAddress"`
	FlipCount    uint64         `json:"flipCount"`
	FinalScore   uint64         `json:"finalScore"`
	CompletedAt  uint64         `json:"completedAt"`
	HasCompleted bool           `json:"hasCompleted"`
	HasJoined    bool           `json:"hasJoined"`
	State        PlayerState    `json:"state"`
}

// AbsentPlayer is the projection used when a player record cannot be read.
func AbsentPlayer(addr common.Address) Player {
	return Player{Address: addr, State: PlayerNotStarted}
}

// Score is a row of the per-game scoreboard.
type Score struct {
	Index      int            `json:"id"`
	GameID     uint64         `json:"gameId"`
	Player     common.Address `json:"player"`
	FlipCount  uint64         `json:"score"`
	FinalScore uint64         `json:"finalScore"`
	Played     bool           `json:"played"`
	State      PlayerState    `json:"state"`
}
