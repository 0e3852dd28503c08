package id

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

// LamportsToSOL converts an integer lamport string into a SOL amount.
func LamportsToSOL(lamports string) (float64, error) {
	v := strings.TrimSpace(lamports)
	if v == "" {
		return 0, clierr.New(clierr.CodeInvalidAmount, "lamport amount is empty")
	}
	if strings.ContainsAny(v, ".eE") {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, clierr.Wrap(clierr.CodeInvalidAmount, fmt.Sprintf("invalid lamport amount %q", v), err)
		}
		return f / 1e9, nil
	}
	if _, ok := new(big.Int).SetString(v, 10); !ok {
		return 0, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("invalid lamport amount %q", v))
	}
	f, err := strconv.ParseFloat(formatDecimal(v, NativeDecimals), 64)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInvalidAmount, fmt.Sprintf("invalid lamport amount %q", v), err)
	}
	return f, nil
}

func formatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	n.SetString(baseUnits, 10)
	neg := n.Sign() < 0
	if neg {
		n.Neg(n)
	}
	if decimals == 0 {
		if neg {
			return "-" + n.String()
		}
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		pad := strings.Repeat("0", decimals-len(s)+1)
		s = pad + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	out := intPart
	if fracPart != "" {
		out = intPart + "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatBaseUnits converts base-unit integer strings into decimal strings.
func FormatBaseUnits(baseUnits string, decimals int) string {
	return formatDecimal(baseUnits, decimals)
}
