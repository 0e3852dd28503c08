package id

import (
	"fmt"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

var solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

const (
	// WrappedSOLMint is the mint address used to label native SOL movements.
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	NativeSymbol   = "SOL"
	NativeDecimals = 9
)

// ParseAddress validates a base58 Solana account or mint address.
func ParseAddress(input, field string) (string, error) {
	v := strings.TrimSpace(input)
	if v == "" {
		return "", clierr.New(clierr.CodeMissingArgument, fmt.Sprintf("%s required", field))
	}
	if !solanaAddressPattern.MatchString(v) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is not a valid Solana address: %s", field, v))
	}
	return v, nil
}

// IsAddress reports whether v looks like a base58 Solana address.
func IsAddress(v string) bool {
	return solanaAddressPattern.MatchString(strings.TrimSpace(v))
}

// ShortAddress abbreviates an address for display, e.g. "So11…1112".
func ShortAddress(v string) string {
	if len(v) <= 10 {
		return v
	}
	return v[:4] + "…" + v[len(v)-4:]
}
