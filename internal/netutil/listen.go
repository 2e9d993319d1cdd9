// Package netutil opens the control API listener.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// ErrNoAddr is returned when neither the preferred address nor any candidate
// could be bound.
var ErrNoAddr = errors.New("no available control bind addresses")

// Listen binds the preferred address, or the first free candidate when
// autoFallback is set. The listener is returned open so the address cannot
// be taken between selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		if err := requireLoopback(preferred); err != nil {
			return nil, err
		}
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying fallbacks", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if err := requireLoopback(addr); err != nil {
			return nil, err
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
	}
	return nil, ErrNoAddr
}

// requireLoopback keeps the control surface off external interfaces; the
// shell token is the only other guard.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("bind address %q: %w", addr, err)
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("bind address %q is not loopback", addr)
	}
	return nil
}
