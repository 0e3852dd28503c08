package llm

import (
	"errors"
	"net/http"
	"testing"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestProtocolKeepsVariant(t *testing.T) {
	err := Protocol(ErrMalformedCall, "function call without name")
	assert.True(t, clierr.Is(err, clierr.CodeProtocol))
	assert.True(t, errors.Is(err, ErrMalformedCall))
	assert.False(t, errors.Is(err, ErrNoParts))
}

func TestRetryableStatus(t *testing.T) {
	for _, s := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		assert.True(t, RetryableStatus(s), "status %d", s)
	}
	for _, s := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		assert.False(t, RetryableStatus(s), "status %d", s)
	}
}
