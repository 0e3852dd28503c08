// Package llm holds what the model clients share: protocol error variants
// and the status retry policy.
package llm

import (
	"errors"
	"net/http"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

var (
	// ErrNoCandidates marks a well-formed answer without any candidate. It is
	// the one protocol variant worth re-asking.
	ErrNoCandidates  = errors.New("response has no candidates")
	ErrNoParts       = errors.New("candidate has no content parts")
	ErrMalformedCall = errors.New("tool call is malformed")
)

// Protocol wraps a sentinel variant as a CodeProtocol error.
func Protocol(variant error, message string) error {
	return clierr.Wrap(clierr.CodeProtocol, message, variant)
}

// RetryableStatus accepts every failure status except client errors that a
// re-issue cannot fix.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return true
	}
}
