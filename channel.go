package expect

import (
	"fmt"
	"time"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock is returned by [Channel.ReadNonblocking] when no data is
// currently available. It is never surfaced to callers of [Session].
var ErrWouldBlock = iox.ErrWouldBlock

// Channel is the duplex byte-stream endpoint driven by a [Session].
//
// Implementations need not be safe for concurrent use, with the exception of
// [Waker.Wake], which may be called from another goroutine while Wait blocks.
type Channel interface {
	// ReadNonblocking reads up to len(p) bytes without blocking. It returns
	// (0, io.EOF) once the stream has closed, and (0, ErrWouldBlock) if
	// nothing is available yet. Short reads are not errors.
	ReadNonblocking(p []byte) (int, error)

	// Write writes p, and may return a short count with a nil error.
	Write(p []byte) (int, error)

	// IsAlive reports whether the endpoint is still connected. It must not
	// consume buffered input.
	IsAlive() bool

	// Wait blocks until the channel is readable, the timeout elapses, or the
	// wait is interrupted (e.g. by a signal). A negative timeout blocks
	// until one of the other outcomes.
	Wait(timeout time.Duration) (WaitResult, error)

	// Close releases the endpoint.
	Close() error
}

// Waker may be implemented by a [Channel] to support cancellation: Wake
// causes a blocked (or the next) Wait to return [WaitInterrupted].
type Waker interface {
	Wake() error
}

// TTY may be implemented by a [Channel] backed by a file descriptor that
// could be a terminal device.
type TTY interface {
	IsTTY() bool
}

// WaitResult is the outcome of [Channel.Wait].
type WaitResult int

const (
	// WaitReady indicates the channel is readable, or has hung up.
	WaitReady WaitResult = iota
	// WaitTimedOut indicates the timeout elapsed with nothing to read.
	WaitTimedOut
	// WaitInterrupted indicates the wait was cut short, and should be
	// retried with a recomputed timeout.
	WaitInterrupted
)

func (x WaitResult) String() string {
	switch x {
	case WaitReady:
		return "ready"
	case WaitTimedOut:
		return "timed-out"
	case WaitInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("WaitResult(%d)", int(x))
	}
}
