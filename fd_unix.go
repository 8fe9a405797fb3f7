//go:build unix

package expect

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// fileOps collects the system calls used by FileChannel.
// Using an ops struct allows tests to inject failures per-instance instead of
// mutating package globals.
type fileOps struct {
	read        func(int, []byte) (int, error)
	write       func(int, []byte) (int, error)
	recvPeek    func(int, []byte) (int, error)
	setNonblock func(int, bool) error
	poll        func([]unix.PollFd, int) (int, error)
	pipe        func([]int) error
	closeFD     func(int) error
	isTerminal  func(int) bool

	//lint:ignore U1000 Unused depending on env.
	kqueue func() (int, error)
	//lint:ignore U1000 Unused depending on env.
	kevent func(int, []fileOpsKevent, []fileOpsKevent, *unix.Timespec) (int, error)

	//lint:ignore U1000 Unused depending on env.
	epollCreate1 func(int) (int, error)
	//lint:ignore U1000 Unused depending on env.
	epollCtl func(int, int, int, *fileOpsEpollEvent) error
	//lint:ignore U1000 Unused depending on env.
	epollWait func(int, []fileOpsEpollEvent, int) (int, error)
}

func newFileOps() *fileOps {
	x := fileOps{
		read:        unix.Read,
		write:       unix.Write,
		recvPeek:    recvPeek,
		setNonblock: unix.SetNonblock,
		poll:        unix.Poll,
		pipe:        unix.Pipe,
		closeFD:     unix.Close,
		isTerminal:  term.IsTerminal,
	}
	x.init()
	return &x
}

// waiter blocks until the channel fd or the wake pipe is readable.
type waiter interface {
	wait(timeout time.Duration) (WaitResult, error)
	close() error
}

// FileOption configures a [FileChannel].
type FileOption interface {
	applyFile(*fileConfig) error
}

type fileConfig struct {
	ops     *fileOps
	usePoll bool
}

type fileOptionImpl func(*fileConfig) error

func (f fileOptionImpl) applyFile(c *fileConfig) error {
	return f(c)
}

// WithPoll selects poll(2) as the readiness wait, instead of the platform
// default (epoll on linux). It has no effect on platforms where poll(2) is
// already the default.
func WithPoll(enabled bool) FileOption {
	return fileOptionImpl(func(c *fileConfig) error {
		c.usePoll = enabled
		return nil
	})
}

// withFileOps replaces the system calls, for tests.
func withFileOps(ops *fileOps) FileOption {
	return fileOptionImpl(func(c *fileConfig) error {
		c.ops = ops
		return nil
	})
}

func resolveFileOptions(opts []FileOption) (*fileConfig, error) {
	cfg := &fileConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply file option: %w", err)
		}
	}
	if cfg.ops == nil {
		cfg.ops = newFileOps()
	}
	return cfg, nil
}

// FileChannel is a [Channel] over a unix file descriptor, e.g. a pty master,
// a pipe, or a socket. It also implements [Waker] and [TTY].
type FileChannel struct {
	file      *os.File
	waiter    waiter
	ops       *fileOps
	fd        int
	wakeR     int
	wakeW     int
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    bool
	socket    bool
}

// NewFileChannel takes ownership of f, which is switched to non-blocking
// mode. On error, f is left open.
func NewFileChannel(f *os.File, opts ...FileOption) (*FileChannel, error) {
	return newFileChannel(f, false, opts)
}

func newFileChannel(f *os.File, socket bool, opts []FileOption) (*FileChannel, error) {
	if f == nil {
		return nil, errors.New("expect: nil file")
	}
	cfg, err := resolveFileOptions(opts)
	if err != nil {
		return nil, err
	}

	c := &FileChannel{
		file:   f,
		ops:    cfg.ops,
		fd:     int(f.Fd()),
		wakeR:  -1,
		wakeW:  -1,
		socket: socket,
	}

	// N.B. Fd() puts the file into blocking mode, so this must come after
	if err := c.ops.setNonblock(c.fd, true); err != nil {
		return nil, fmt.Errorf("expect: failed to set non-blocking mode: %w", err)
	}
	if err := c.initWakePipe(); err != nil {
		return nil, fmt.Errorf("expect: failed to create wake pipe: %w", err)
	}
	if cfg.usePoll {
		c.waiter = newPollWaiter(c)
	} else if c.waiter, err = newDefaultWaiter(c); err != nil {
		_ = c.closeWakePipe()
		return nil, fmt.Errorf("expect: failed to init poller: %w", err)
	}
	return c, nil
}

func (c *FileChannel) initWakePipe() error {
	var fds [2]int
	if err := c.ops.pipe(fds[:]); err != nil {
		return err
	}
	for _, fd := range fds {
		if err := c.ops.setNonblock(fd, true); err != nil {
			_ = c.ops.closeFD(fds[0])
			_ = c.ops.closeFD(fds[1])
			return err
		}
	}
	c.wakeR, c.wakeW = fds[0], fds[1]
	return nil
}

func (c *FileChannel) closeWakePipe() (firstErr error) {
	for _, fd := range [...]*int{&c.wakeR, &c.wakeW} {
		if *fd >= 0 {
			if err := c.ops.closeFD(*fd); err != nil && firstErr == nil {
				firstErr = err
			}
			*fd = -1
		}
	}
	return firstErr
}

// drainWake empties the wake pipe.
func (c *FileChannel) drainWake() {
	var buf [128]byte
	for {
		n, err := c.ops.read(c.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// ReadNonblocking implements [Channel].
func (c *FileChannel) ReadNonblocking(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.EOF
	}
	for {
		n, err := c.ops.read(c.fd, p)
		switch {
		case err == nil:
			if n == 0 && len(p) > 0 {
				return 0, io.EOF
			}
			return n, nil
		case errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			return 0, ErrWouldBlock
		case shouldInterpretAsEOF(err):
			return 0, io.EOF
		default:
			return max(n, 0), err
		}
	}
}

// shouldInterpretAsEOF reports read errors that mean the other side of a pty
// has closed.
func shouldInterpretAsEOF(err error) bool {
	return errors.Is(err, syscall.EIO)
}

// writePollInterval bounds each wait for write space, so that a concurrent
// Close is observed.
const writePollInterval = 50 * time.Millisecond

// Write implements [Channel]. It blocks until at least one byte can be
// written, or the channel is closed. The lock is not held while waiting for
// write space, so Wake and Close proceed against a stalled reader.
func (c *FileChannel) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, full, err := c.tryWrite(p)
		if !full {
			return n, err
		}
		fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
		if _, err := c.ops.poll(fds, timeoutMillis(writePollInterval)); err != nil && !errors.Is(err, syscall.EINTR) {
			return 0, err
		}
	}
}

// tryWrite performs a single non-blocking write under the lock, reporting
// full if the write should be retried once there is space.
func (c *FileChannel) tryWrite(p []byte) (n int, full bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return 0, false, os.ErrClosed
		}
		n, err = c.ops.write(c.fd, p)
		switch {
		case err == nil:
			return n, false, nil
		case errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			return 0, true, nil
		default:
			return max(n, 0), false, err
		}
	}
}

// IsAlive implements [Channel], by polling without a timeout. For sockets
// with pending input, liveness is checked by peeking, which does not
// consume.
func (c *FileChannel) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN | pollRDHUP}}
	for {
		_, err := c.ops.poll(fds, 0)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EINTR) {
			return false
		}
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL|pollRDHUP) != 0 {
		return false
	}
	if c.socket && fds[0].Revents&unix.POLLIN != 0 {
		var b [1]byte
		if n, err := c.ops.recvPeek(c.fd, b[:]); err == nil && n == 0 {
			return false
		}
	}
	return true
}

// IsTTY implements [TTY].
func (c *FileChannel) IsTTY() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.socket {
		return false
	}
	return c.ops.isTerminal(c.fd)
}

// Wait implements [Channel].
func (c *FileChannel) Wait(timeout time.Duration) (WaitResult, error) {
	c.mu.Lock()
	closed, w := c.closed, c.waiter
	c.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	return w.wait(timeout)
}

// Wake implements [Waker]. It is safe to call concurrently with any method.
func (c *FileChannel) Wake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.wakeW < 0 {
		return nil
	}
	_, err := c.ops.write(c.wakeW, []byte{0})
	if errors.Is(err, syscall.EAGAIN) {
		// already pending
		err = nil
	}
	return err
}

// Fd returns the underlying file descriptor.
func (c *FileChannel) Fd() int {
	return c.fd
}

// Close implements [Channel].
func (c *FileChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.New("panic during close")

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true

		var errs []error
		if c.waiter != nil {
			if err := c.waiter.close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close poller: %w", err))
			}
		}
		if err := c.closeWakePipe(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close wake pipe: %w", err))
		}
		if err := c.file.Close(); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// timeoutMillis converts a wait timeout for poll(2) and epoll_wait(2),
// rounding up so that short waits do not spin.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
