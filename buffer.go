package expect

import (
	"errors"
	"io"
)

type pullResult int

const (
	pullData pullResult = iota
	pullEOF
	pullWouldBlock
)

func (x pullResult) String() string {
	switch x {
	case pullData:
		return "data"
	case pullEOF:
		return "eof"
	case pullWouldBlock:
		return "would-block"
	default:
		return "unknown"
	}
}

// buffer accumulates bytes read from a Channel, until they are consumed by a
// match. It only ever grows by appending, and shrinks by removing a prefix.
type buffer struct {
	logRead io.Writer
	data    []byte
	scratch []byte
	// eof is sticky, once the channel has reported closure it is not read
	eof bool
}

// pull performs a single read of up to min(requested, maxRead) bytes.
func (x *buffer) pull(ch Channel, requested, maxRead int) (int, pullResult, error) {
	if x.eof {
		return 0, pullEOF, nil
	}

	size := min(requested, maxRead)
	if size <= 0 {
		size = maxRead
	}
	if cap(x.scratch) < size {
		x.scratch = make([]byte, size)
	}
	p := x.scratch[:size]

	n, err := ch.ReadNonblocking(p)
	if n < 0 || n > len(p) {
		return 0, 0, &ChannelError{Op: "read", Err: errors.New("invalid read count")}
	}
	if n > 0 {
		x.data = append(x.data, p[:n]...)
		if x.logRead != nil {
			_, _ = x.logRead.Write(p[:n])
		}
	}

	switch {
	case err == nil:
		if n == 0 {
			// a zero-length read without an error signals closure
			x.eof = true
			return 0, pullEOF, nil
		}
		return n, pullData, nil

	case errors.Is(err, io.EOF):
		x.eof = true
		if n > 0 {
			return n, pullData, nil
		}
		return 0, pullEOF, nil

	case errors.Is(err, ErrWouldBlock):
		if n > 0 {
			return n, pullData, nil
		}
		return 0, pullWouldBlock, nil

	default:
		return n, 0, &ChannelError{Op: "read", Err: err}
	}
}

// windowStart returns the offset from which a scan should start, given a
// search window size (zero meaning unbounded).
func (x *buffer) windowStart(searchWindowSize int) int {
	if searchWindowSize > 0 && len(x.data) > searchWindowSize {
		return len(x.data) - searchWindowSize
	}
	return 0
}

// consume removes and returns a copy of the first n bytes.
func (x *buffer) consume(n int) []byte {
	n = min(n, len(x.data))
	out := make([]byte, n)
	copy(out, x.data)
	x.data = append(x.data[:0], x.data[n:]...)
	return out
}

// snapshot returns a copy of the buffer, without consuming it.
func (x *buffer) snapshot() []byte {
	return append([]byte{}, x.data...)
}

func (x *buffer) len() int { return len(x.data) }
