package game

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxSafeInteger bounds integer fields; anything larger decodes as 0.
const MaxSafeInteger = 1<<53 - 1

// safeUint converts an integer-like value, returning 0 for missing,
// negative, oversized or non-numeric input.
func safeUint(v interface{}) uint64 {
	switch x := v.(type) {
	case nil:
		return 0
	case *big.Int:
		if x == nil || x.Sign() < 0 {
			return 0
		}
		u, overflow := uint256.FromBig(x)
		if overflow {
			return 0
		}
		return clampSafe(u)
	case big.Int:
		return safeUint(&x)
	case *uint256.Int:
		if x == nil {
			return 0
		}
		return clampSafe(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return clampUint(x)
	case uint:
		return clampUint(uint64(x))
	case int:
		return clampInt(int64(x))
	case int8:
		return clampInt(int64(x))
	case int16:
		return clampInt(int64(x))
	case int32:
		return clampInt(int64(x))
	case int64:
		return clampInt(x)
	case float64:
		if math.IsNaN(x) || x < 0 || x > MaxSafeInteger || x != math.Trunc(x) {
			return 0
		}
		return uint64(x)
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(x), 0)
		if !ok {
			return 0
		}
		return safeUint(n)
	}
	return 0
}

func clampSafe(u *uint256.Int) uint64 {
	if !u.IsUint64() {
		return 0
	}
	return clampUint(u.Uint64())
}

func clampUint(x uint64) uint64 {
	if x > MaxSafeInteger {
		return 0
	}
	return x
}

func clampInt(x int64) uint64 {
	if x < 0 {
		return 0
	}
	return clampUint(uint64(x))
}

// amount converts a wei value. Amounts are not clamped but never negative.
func amount(v interface{}) *big.Int {
	switch x := v.(type) {
	case *big.Int:
		if x != nil && x.Sign() > 0 {
			return new(big.Int).Set(x)
		}
	case big.Int:
		return amount(&x)
	case *uint256.Int:
		if x != nil {
			return x.ToBig()
		}
	case string:
		if n, ok := new(big.Int).SetString(strings.TrimSpace(x), 0); ok {
			return amount(n)
		}
	default:
		if n := safeUint(v); n > 0 {
			return new(big.Int).SetUint64(n)
		}
	}
	return new(big.Int)
}

func address(v interface{}) common.Address {
	switch x := v.(type) {
	case common.Address:
		return x
	case *common.Address:
		if x != nil {
			return *x
		}
	case [20]byte:
		return common.Address(x)
	case string:
		if common.IsHexAddress(x) {
			return common.HexToAddress(x)
		}
	}
	return common.Address{}
}

func text(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	}
	return ""
}

func flag(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	return safeUint(v) != 0
}

func nonZeroBytes32(v interface{}) bool {
	switch x := v.(type) {
	case [32]byte:
		return x != [32]byte{}
	case common.Hash:
		return x != common.Hash{}
	case []byte:
		for _, b := range x {
			if b != 0 {
				return true
			}
		}
	case string:
		h := strings.TrimPrefix(strings.ToLower(x), "0x")
		return strings.Trim(h, "0") != ""
	}
	return false
}

// requestID renders the VRF request correlation handle.
func requestID(v interface{}) string {
	switch x := v.(type) {
	case *big.Int:
		if x != nil {
			return x.String()
		}
	case [32]byte:
		return common.Hash(x).Hex()
	case common.Hash:
		return x.Hex()
	case string:
		if x != "" {
			return x
		}
	case uint64:
		return strconv.FormatUint(x, 10)
	}
	return "0x"
}

// cardFaces reads a card order, mapping out-of-range faces to 0.
func cardFaces(v interface{}) []int {
	var raw []interface{}
	switch x := v.(type) {
	case []uint8:
		for _, c := range x {
			raw = append(raw, c)
		}
	case []*big.Int:
		for _, c := range x {
			raw = append(raw, c)
		}
	case []uint64:
		for _, c := range x {
			raw = append(raw, c)
		}
	case []interface{}:
		raw = x
	default:
		return []int{}
	}
	out := make([]int, len(raw))
	for i, c := range raw {
		if n := safeUint(c); n < CardFaces {
			out[i] = int(n)
		}
	}
	return out
}

// CardFaces is the number of distinct card faces in a deck.
const CardFaces = 12

func addresses(v interface{}) []common.Address {
	switch x := v.(type) {
	case []common.Address:
		return x
	case []interface{}:
		out := make([]common.Address, 0, len(x))
		for _, a := range x {
			if addr := address(a); addr != (common.Address{}) {
				out = append(out, addr)
			}
		}
		return out
	}
	return nil
}
