package game

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var (
	weiPerEther = big.NewInt(params.Ether)
	// decimalEther is a plain decimal: no sign, exponent or fraction bar.
	decimalEther = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseEther converts a decimal ether amount such as "0.000003" to wei.
// More than 18 fractional digits is an error.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") && decimalEther.MatchString(s[1:]) {
		return nil, fmt.Errorf("negative ether amount %q", s)
	}
	if !decimalEther.MatchString(s) {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 18 {
		return nil, fmt.Errorf("ether amount %q has more than 18 decimals", s)
	}
	wei, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", 18-len(frac)), 10)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	return wei, nil
}

// MustEther is ParseEther for constants.
func MustEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)
	q, r := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	out := q.String()
	if r.Sign() != 0 {
		digits := r.String()
		frac := strings.TrimRight(strings.Repeat("0", 18-len(digits))+digits, "0")
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
