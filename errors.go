package expect

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrTimeout matches any [*TimeoutError].
	ErrTimeout = errors.New("expect: timeout")
	// ErrEOF matches any [*EOFError].
	ErrEOF = errors.New("expect: end of stream")
	// ErrInvalidPattern matches any [*PatternError].
	ErrInvalidPattern = errors.New("expect: invalid pattern")
	// ErrChannel matches any [*ChannelError].
	ErrChannel = errors.New("expect: channel error")
	// ErrClosed is returned by operations on a closed [Session].
	ErrClosed = errors.New("expect: session closed")
)

// TimeoutError indicates that no pattern matched before the deadline, and
// that the pattern list did not include [TIMEOUT].
type TimeoutError struct {
	// Buffer is a copy of the unmatched bytes, which remain buffered.
	Buffer []byte
	// Duration is the timeout that applied to the call.
	Duration time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expect: timeout after %s (%d bytes buffered): %q", e.Duration, len(e.Buffer), tail(e.Buffer))
}

// Is matches [ErrTimeout].
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Timeout reports true, for compatibility with net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// EOFError indicates that the channel closed before any pattern matched, and
// that the pattern list did not include [EOF].
type EOFError struct {
	// Buffer is a copy of every byte received and not yet consumed.
	Buffer []byte
}

// Error implements the error interface.
func (e *EOFError) Error() string {
	return fmt.Sprintf("expect: end of stream (%d bytes buffered): %q", len(e.Buffer), tail(e.Buffer))
}

// Is matches [ErrEOF] and [io.EOF].
func (e *EOFError) Is(target error) bool {
	return target == ErrEOF || target == io.EOF
}

// PatternError indicates a pattern that could not be compiled or evaluated.
type PatternError struct {
	Err error
	// Index is the position of the pattern in the caller's list, or -1.
	Index int
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("expect: invalid pattern: %v", e.Err)
	}
	return fmt.Sprintf("expect: invalid pattern at index %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PatternError) Unwrap() error { return e.Err }

// Is matches [ErrInvalidPattern].
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// ChannelError wraps an I/O failure of the underlying [Channel]. It is fatal
// to the session.
type ChannelError struct {
	Err error
	Op  string
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	return fmt.Sprintf("expect: channel %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ChannelError) Unwrap() error { return e.Err }

// Is matches [ErrChannel].
func (e *ChannelError) Is(target error) bool {
	return target == ErrChannel
}

// tailSize bounds the buffer excerpt included in error messages.
const tailSize = 100

func tail(b []byte) []byte {
	if len(b) > tailSize {
		return b[len(b)-tailSize:]
	}
	return b
}
