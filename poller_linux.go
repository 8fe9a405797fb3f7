//go:build linux

package expect

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type fileOpsKevent = any
type fileOpsEpollEvent = unix.EpollEvent

// pollRDHUP detects a peer that has shut down writing, see IsAlive.
const pollRDHUP = unix.POLLRDHUP

func (x *fileOps) init() {
	x.epollCreate1 = unix.EpollCreate1
	x.epollCtl = unix.EpollCtl
	x.epollWait = unix.EpollWait
}

func newDefaultWaiter(c *FileChannel) (waiter, error) {
	w, err := newEpollWaiter(c)
	if errors.Is(err, syscall.EPERM) {
		// regular files do not support epoll
		return newPollWaiter(c), nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// epollWaiter waits using an epoll instance, with the channel fd and the
// wake pipe registered for read events.
type epollWaiter struct {
	c      *FileChannel
	pollFD int
}

func newEpollWaiter(c *FileChannel) (*epollWaiter, error) {
	epfd, err := c.ops.epollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	for _, fd := range [...]int{c.fd, c.wakeR} {
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := c.ops.epollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			_ = c.ops.closeFD(epfd)
			return nil, err
		}
	}
	return &epollWaiter{c: c, pollFD: epfd}, nil
}

func (x *epollWaiter) wait(timeout time.Duration) (WaitResult, error) {
	var events [2]unix.EpollEvent
	n, err := x.c.ops.epollWait(x.pollFD, events[:], timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return WaitInterrupted, nil
		}
		return 0, err
	}
	result := WaitTimedOut
	for i := 0; i < n; i++ {
		switch int(events[i].Fd) {
		case x.c.fd:
			// EPOLLHUP and EPOLLERR included, the read reports them
			result = WaitReady
		case x.c.wakeR:
			x.c.drainWake()
			if result != WaitReady {
				result = WaitInterrupted
			}
		}
	}
	return result, nil
}

func (x *epollWaiter) close() error {
	if x.pollFD < 0 {
		return nil
	}
	err := x.c.ops.closeFD(x.pollFD)
	x.pollFD = -1
	return err
}
