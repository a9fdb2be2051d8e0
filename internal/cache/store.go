package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// Key addresses one cache entry.
type Key struct {
	ChainID uint64
	Player  common.Address
}

// PlayerHex is the lower-cased player address used as the storage key.
func (k Key) PlayerHex() string { return strings.ToLower(k.Player.Hex()) }

func (k Key) String() string { return fmt.Sprintf("basefair:games:%d:%s", k.ChainID, k.PlayerHex()) }

// LastCreated records the most recent game created from this client. When
// Unresolved is set GameID is a guess from the game counter and TxHash is
// the creating transaction.
type LastCreated struct {
	ChainID    uint64      `json:"chainId"`
	GameID     uint64      `json:"gameId"`
	Timestamp  time.Time   `json:"timestamp"`
	TxHash     common.Hash `json:"txHash"`
	Unresolved bool        `json:"unresolved,omitempty"`
}

// Store persists cache entries. Save replaces the whole entry.
type Store interface {
	Load(ctx context.Context, key Key) ([]game.Game, error)
	Save(ctx context.Context, key Key, games []game.Game) error
	SaveLastCreated(ctx context.Context, rec LastCreated) error
	// LastCreated reports false when nothing was recorded for chainID.
	LastCreated(ctx context.Context, chainID uint64) (LastCreated, bool, error)
	Close() error
}

// Updater is implemented by stores that can read, rewrite and save an entry
// as one step, so writers sharing the store do not overwrite each other.
// A failed read aborts the update without writing.
type Updater interface {
	Update(ctx context.Context, key Key, fn func(stored []game.Game) []game.Game) ([]game.Game, error)
}
