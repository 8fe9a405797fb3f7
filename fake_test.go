package expect

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (x *fakeClock) Now() time.Time {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.now
}

func (x *fakeClock) Advance(d time.Duration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.now = x.now.Add(d)
}

func (x *fakeClock) Sleep(d time.Duration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.sleeps = append(x.sleeps, d)
	x.now = x.now.Add(d)
}

// fakeWait scripts the outcome of a single Wait call.
type fakeWait struct {
	err    error
	data   string
	elapse time.Duration
	result WaitResult
	eof    bool
}

var errScriptExhausted = errors.New("fake: wait script exhausted")

// fakeChannel is a scripted Channel. Once the wait script is exhausted it
// reports ready while input is pending, and otherwise lets the full timeout
// elapse on the fake clock.
type fakeChannel struct {
	clock        *fakeClock
	readErr      error
	writeErr     error
	closeErr     error
	waits        []fakeWait
	pending      []byte
	waitTimeouts []time.Duration
	readSizes    []int
	written      bytes.Buffer
	writeLimit   int
	closed       int
	eof          bool
	dead         bool
	tty          bool
}

func newFakeChannel(clock *fakeClock, waits ...fakeWait) *fakeChannel {
	return &fakeChannel{clock: clock, waits: waits}
}

func (x *fakeChannel) ReadNonblocking(p []byte) (int, error) {
	x.readSizes = append(x.readSizes, len(p))
	if x.readErr != nil {
		return 0, x.readErr
	}
	if len(x.pending) > 0 {
		n := copy(p, x.pending)
		x.pending = x.pending[n:]
		return n, nil
	}
	if x.eof {
		return 0, io.EOF
	}
	return 0, ErrWouldBlock
}

func (x *fakeChannel) Write(p []byte) (int, error) {
	if x.writeErr != nil {
		return 0, x.writeErr
	}
	n := len(p)
	if x.writeLimit > 0 && n > x.writeLimit {
		n = x.writeLimit
	}
	x.written.Write(p[:n])
	return n, nil
}

func (x *fakeChannel) IsAlive() bool { return !x.dead && x.closed == 0 }

func (x *fakeChannel) Wait(timeout time.Duration) (WaitResult, error) {
	x.waitTimeouts = append(x.waitTimeouts, timeout)
	if len(x.waits) == 0 {
		if len(x.pending) > 0 || x.eof {
			return WaitReady, nil
		}
		if timeout < 0 {
			return 0, errScriptExhausted
		}
		x.clock.Advance(timeout)
		return WaitTimedOut, nil
	}
	w := x.waits[0]
	x.waits = x.waits[1:]
	x.clock.Advance(w.elapse)
	x.pending = append(x.pending, w.data...)
	if w.eof {
		x.eof = true
	}
	return w.result, w.err
}

func (x *fakeChannel) Close() error {
	x.closed++
	return x.closeErr
}

// fakeTTYChannel adds the TTY capability.
type fakeTTYChannel struct {
	*fakeChannel
}

func (x fakeTTYChannel) IsTTY() bool { return x.tty }

// ready is shorthand for a wait that delivers data.
func ready(data string) fakeWait {
	return fakeWait{result: WaitReady, data: data}
}
