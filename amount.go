package b777

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the fixed-point scale used for every supported token.
// All B777 tokens on BSC carry 18 decimals; the token contract is not
// queried for its actual decimal count.
const TokenDecimals = 18

var baseUnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// ParseAmount converts a decimal token amount such as "0.01" into base units
// at the 18-decimal scale. Digits beyond the 18th decimal place are dropped
// (the value is floored, never rounded up).
func ParseAmount(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}

	if len(frac) > TokenDecimals {
		frac = frac[:TokenDecimals]
	}
	frac += strings.Repeat("0", TokenDecimals-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	return value, nil
}

// FormatAmount renders base units back into a decimal string, trimming
// trailing zeros from the fractional part. It is the exact inverse of
// ParseAmount for amounts representable at the 18-decimal scale.
func FormatAmount(baseUnits *big.Int) string {
	if baseUnits == nil || baseUnits.Sign() == 0 {
		return "0"
	}
	if baseUnits.Sign() < 0 {
		return "-" + FormatAmount(new(big.Int).Neg(baseUnits))
	}
	whole, frac := new(big.Int).QuoRem(baseUnits, baseUnitScale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := frac.String()
	fracStr = strings.Repeat("0", TokenDecimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
