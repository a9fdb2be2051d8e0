package chain

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed flipmatch.abi.json
var flipMatchABIJSON []byte

// liteABIJSON covers the FlipMatchLite functions whose signatures or return
// shapes differ from the full contract.
const liteABIJSON = `[
	{"type":"function","name":"createGame","stateMutability":"payable",
	 "inputs":[{"name":"gameType","type":"uint8","internalType":"enum FlipMatchLite.GameType"},{"name":"maxPlayers","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getGame","stateMutability":"view",
	 "inputs":[{"name":"gameId","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple","internalType":"struct FlipMatchLite.Game","components":[
		{"name":"id","type":"uint256"},
		{"name":"gameType","type":"uint8"},
		{"name":"status","type":"uint8"},
		{"name":"creator","type":"address"},
		{"name":"stake","type":"uint256"},
		{"name":"totalPrize","type":"uint256"},
		{"name":"maxPlayers","type":"uint256"},
		{"name":"currentPlayers","type":"uint256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"winner","type":"address"},
		{"name":"winnerScore","type":"uint256"},
		{"name":"vrfRequestId","type":"uint256"},
		{"name":"vrfFulfilled","type":"bool"},
		{"name":"passwordHash","type":"bytes32"}]}]}
]`

// Event names consumed by the core.
const (
	EventGameCreated   = "GameCreated"
	EventGameCompleted = "GameCompleted"
)

// ABIs bundles the contract interface of every supported schema.
type ABIs struct {
	Full abi.ABI
	Lite abi.ABI
}

// LoadABIs parses the full interface from data (the embedded FlipMatch ABI
// when nil) together with the Lite fragment.
func LoadABIs(data []byte) (*ABIs, error) {
	if data == nil {
		data = flipMatchABIJSON
	}
	full, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse FlipMatch ABI: %w", err)
	}
	lite, err := abi.JSON(strings.NewReader(liteABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse FlipMatchLite ABI: %w", err)
	}
	return &ABIs{Full: full, Lite: lite}, nil
}

// Empty reports whether the full interface carries no methods.
func (a *ABIs) Empty() bool {
	return a == nil || len(a.Full.Methods) == 0
}
