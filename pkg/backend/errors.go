package backend

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors returned (wrapped) by Client implementations.
var (
	// ErrUnsupported is returned by implementations that do not offer an
	// optional capability, such as streaming transcription on the direct
	// bypass backend.
	ErrUnsupported = errors.New("backend: operation not supported")

	// ErrTransport indicates a connection, timeout, or HTTP-level failure.
	ErrTransport = errors.New("backend: transport failure")

	// ErrProtocol indicates a malformed response or frame from the service.
	ErrProtocol = errors.New("backend: protocol error")
)

// IsTransport reports whether err is a transport-class failure: an explicit
// ErrTransport wrap, a context deadline, or a net error.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsProtocol reports whether err is a protocol-class failure.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}
