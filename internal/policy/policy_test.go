package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "trades"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"tools list"}, "Tools  List"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"ask"}, "serve"); err == nil {
		t.Fatal("expected command to be blocked")
	}
}

func TestCheckToolAllowed(t *testing.T) {
	if err := CheckToolAllowed(nil, "get_user_trades"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	err := CheckToolAllowed([]string{"off_topic"}, "get_user_trades")
	if !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}
