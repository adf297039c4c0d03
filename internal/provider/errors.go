// Package provider talks to the device-provider control API.
package provider

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSessionExpired means the provider rejected the token or the device has no automation session.
var ErrSessionExpired = errors.New("provider session expired")

// NetworkError wraps a request that never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: no response from provider: %v", e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response other than 401 and 404.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: provider responded %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsSessionExpired reports whether err should be surfaced as an expired session.
// Network failures are treated the same way.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionExpired) {
		return true
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
