package spead

import "github.com/pkg/errors"

// Wire-independent error kinds surfaced to callers of the send scheduler
// and the receive framer/parser. These are sentinel values; compare with
// errors.Is.
var (
	ErrWouldBlock       = errors.New("spead: send queue full")
	ErrCancelled         = errors.New("spead: operation cancelled")
	ErrConnectionClosed = errors.New("spead: connection closed")
	ErrTruncatedPacket  = errors.New("spead: truncated packet")
	ErrQueueFull        = errors.New("spead: queue full")
	ErrMissingMandatoryItem = errors.New("spead: packet missing a mandatory item pointer")
)
