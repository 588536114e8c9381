package llmclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxElapsed = 2 * time.Minute

func newBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	b.MaxElapsedTime = maxElapsed
	b.MaxInterval = 30 * time.Second
	return b
}

// statusError wraps a non-200 completion response. Throttling and server
// errors are retried, everything else is permanent.
func statusError(provider string, status int, body string) error {
	err := fmt.Errorf("%s API error: status %d, body: %s", provider, status, body)
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}
