package chain

import (
	"errors"
	"math/big"
	"strings"
)

const etherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)

// ErrInvalidAmount is returned when a decimal ether string cannot be parsed
// into an exact wei amount.
var ErrInvalidAmount = errors.New("invalid ether amount")

// FormatEther renders wei as an exact decimal ether string with trailing
// zeros removed: 300000000000000 -> "0.0003".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	s := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", etherDecimals-len(digits)) + digits
		s += "." + strings.TrimRight(digits, "0")
	}
	if wei.Sign() < 0 {
		s = "-" + s
	}
	return s
}

// ParseEther converts a decimal ether string to wei without going through
// floating point. More than 18 fractional digits is an error.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals || !allDigits(whole) || !allDigits(frac) {
		return nil, ErrInvalidAmount
	}
	frac += strings.Repeat("0", etherDecimals-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return wei, nil
}

// FormatBalance renders wei as ether rounded half-up to four decimals, the
// way balances are shown next to the connected account.
func FormatBalance(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	const places = 4
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(places), nil)
	half := new(big.Int).Quo(weiPerEther, big.NewInt(2))

	scaled := new(big.Int).Mul(new(big.Int).Abs(wei), scale)
	scaled.Add(scaled, half)
	scaled.Quo(scaled, weiPerEther)

	whole, frac := new(big.Int).QuoRem(scaled, scale, new(big.Int))
	digits := frac.String()
	digits = strings.Repeat("0", places-len(digits)) + digits

	s := whole.String() + "." + digits
	if wei.Sign() < 0 && scaled.Sign() != 0 {
		s = "-" + s
	}
	return s
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
