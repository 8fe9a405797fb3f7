//go:build unix

package expect

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollWaiter waits using poll(2), watching the channel fd and the wake pipe.
type pollWaiter struct {
	c *FileChannel
}

func newPollWaiter(c *FileChannel) *pollWaiter {
	return &pollWaiter{c: c}
}

func (x *pollWaiter) wait(timeout time.Duration) (WaitResult, error) {
	fds := []unix.PollFd{
		{Fd: int32(x.c.fd), Events: unix.POLLIN},
		{Fd: int32(x.c.wakeR), Events: unix.POLLIN},
	}
	n, err := x.c.ops.poll(fds, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return WaitInterrupted, nil
		}
		return 0, err
	}
	if n == 0 {
		return WaitTimedOut, nil
	}
	// hangup and error conditions are readable, the read reports them
	if fds[0].Revents != 0 {
		if fds[1].Revents != 0 {
			x.c.drainWake()
		}
		return WaitReady, nil
	}
	if fds[1].Revents != 0 {
		x.c.drainWake()
		return WaitInterrupted, nil
	}
	return WaitTimedOut, nil
}

func (x *pollWaiter) close() error { return nil }
