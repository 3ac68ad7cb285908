package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfConnection is returned when the version message received from
	// the remote peer carries the nonce we sent, meaning we dialed
	// ourselves.
	ErrSelfConnection = errors.New("disconnecting peer connected to self")

	// ErrPeerClosed is returned when the remote peer closes the connection
	// before the handshake completes.
	ErrPeerClosed = errors.New("connection closed by peer")
)

// TransportError describes a failure to connect to, read from or write to
// the remote peer. The handshake is aborted when one occurs.
type TransportError struct {
	Op   string // "dial", "read" or "write"
	Addr string // Remote address
	Err  error  // Underlying error
}

// Error satisfies the error interface.
func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
