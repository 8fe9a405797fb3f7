//go:build darwin

package expect

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type fileOpsKevent = unix.Kevent_t
type fileOpsEpollEvent = any

const pollRDHUP = 0

func (x *fileOps) init() {
	x.kqueue = unix.Kqueue
	x.kevent = unix.Kevent
}

func newDefaultWaiter(c *FileChannel) (waiter, error) {
	return newKqueueWaiter(c)
}

// kqueueWaiter waits using a kqueue, since poll(2) is unreliable for
// devices (including ptys) on darwin.
type kqueueWaiter struct {
	c      *FileChannel
	pollFD int
}

func newKqueueWaiter(c *FileChannel) (*kqueueWaiter, error) {
	kq, err := c.ops.kqueue()
	if err != nil {
		return nil, err
	}
	changes := []unix.Kevent_t{
		{Ident: uint64(c.fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
		{Ident: uint64(c.wakeR), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
	if _, err := c.ops.kevent(kq, changes, nil, nil); err != nil {
		_ = c.ops.closeFD(kq)
		return nil, err
	}
	return &kqueueWaiter{c: c, pollFD: kq}, nil
}

func (x *kqueueWaiter) wait(timeout time.Duration) (WaitResult, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		v := unix.NsecToTimespec(int64(timeout))
		ts = &v
	}
	var events [2]unix.Kevent_t
	n, err := x.c.ops.kevent(x.pollFD, nil, events[:], ts)
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return WaitInterrupted, nil
		}
		return 0, err
	}
	result := WaitTimedOut
	for i := 0; i < n; i++ {
		switch int(events[i].Ident) {
		case x.c.fd:
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

func (x *kqueueWaiter) close() error {
	if x.pollFD < 0 {
		return nil
	}
	err := x.c.ops.closeFD(x.pollFD)
	x.pollFD = -1
	return err
}
