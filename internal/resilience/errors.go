// Package resilience classifies network failures and retries operations
// against flaky endpoints.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsConnectionFailure reports whether the error is a connection-level
// failure: the proxy or the upstream host could not be reached at all, as
// opposed to a reachable server answering badly. Product extraction treats
// these as grounds to bench the proxy that produced them.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Proxy CONNECT and dial failures surface as wrapped url.Errors whose
	// cause is often only visible in the message.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"proxyconnect",
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"temporary failure in name resolution",
		"tls handshake timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransient reports whether the error is worth retrying: connection
// failures plus plain timeouts on an established connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionFailure(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}
