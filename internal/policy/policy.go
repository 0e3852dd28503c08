package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

// CheckCommandAllowed rejects CLI commands absent from a non-empty allowlist.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if allowed(allowlist, commandPath) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckToolAllowed rejects tools absent from a non-empty allowlist.
func CheckToolAllowed(allowlist []string, tool string) error {
	if allowed(allowlist, tool) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("tool %s blocked by tools.enabled policy", tool))
}

func allowed(allowlist []string, v string) bool {
	if len(allowlist) == 0 {
		return true
	}
	norm := normalize(v)
	for _, a := range allowlist {
		if normalize(a) == norm {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
