package expect

import (
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultMaxRead is the default number of bytes requested per read.
	DefaultMaxRead = 2000

	// DefaultTimeout is the default deadline budget of a single expect.
	DefaultTimeout = 30 * time.Second

	// Forever disables the deadline. Any negative timeout behaves the same.
	Forever time.Duration = -1
)

// Option configures a [Session].
type Option interface {
	applySession(*sessionConfig) error
}

// ExpectOption overrides session configuration for a single call, e.g.
// [Session.Expect] or [Session.ReadNonblocking].
type ExpectOption interface {
	applyExpect(*expectConfig) error
}

// SharedOption is a return type for options compatible with BOTH
// [New] and per-call overrides.
type SharedOption interface {
	Option
	ExpectOption
}

// expectConfig holds the settings that may vary per call.
type expectConfig struct {
	maxRead          int
	searchWindowSize int
	timeout          time.Duration
}

// sessionConfig holds configuration for Session.
type sessionConfig struct {
	expectConfig
	logger          *logiface.Logger[logiface.Event]
	logRead         io.Writer
	logSend         io.Writer
	delayBeforeSend time.Duration
	now             func() time.Time
	sleep           func(time.Duration)
}

// sharedOptionImpl implements SharedOption.
type sharedOptionImpl func(*expectConfig) error

func (f sharedOptionImpl) applySession(c *sessionConfig) error {
	return f(&c.expectConfig)
}

func (f sharedOptionImpl) applyExpect(c *expectConfig) error {
	return f(c)
}

// sessionOptionImpl implements Option.
type sessionOptionImpl func(*sessionConfig) error

func (f sessionOptionImpl) applySession(c *sessionConfig) error {
	return f(c)
}

// --- Shared Options ---

// WithMaxRead sets the maximum number of bytes requested per raw read.
// Default is [DefaultMaxRead].
func WithMaxRead(n int) SharedOption {
	return sharedOptionImpl(func(c *expectConfig) error {
		if n <= 0 {
			return fmt.Errorf("maxread must be positive, got %d", n)
		}
		c.maxRead = n
		return nil
	})
}

// WithSearchWindowSize bounds how many trailing buffered bytes are scanned
// per match attempt. Zero, the default, scans the whole buffer.
func WithSearchWindowSize(n int) SharedOption {
	return sharedOptionImpl(func(c *expectConfig) error {
		if n < 0 {
			return fmt.Errorf("searchwindowsize must not be negative, got %d", n)
		}
		c.searchWindowSize = n
		return nil
	})
}

// WithTimeout sets the deadline budget, measured from the start of each
// call. Default is [DefaultTimeout], use [Forever] to block indefinitely.
func WithTimeout(d time.Duration) SharedOption {
	return sharedOptionImpl(func(c *expectConfig) error {
		if d < 0 {
			d = Forever
		}
		c.timeout = d
		return nil
	})
}

// --- Session-Specific Options ---

// WithLogger enables structured logging of reads, waits and outcomes.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		c.logger = logger
		return nil
	})
}

// WithLogfile mirrors all bytes read from, and sent to, the channel, to w.
func WithLogfile(w io.Writer) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		c.logRead = w
		c.logSend = w
		return nil
	})
}

// WithLogfileRead mirrors all bytes read from the channel to w.
func WithLogfileRead(w io.Writer) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		c.logRead = w
		return nil
	})
}

// WithLogfileSend mirrors all bytes sent to the channel to w.
func WithLogfileSend(w io.Writer) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		c.logSend = w
		return nil
	})
}

// WithDelayBeforeSend pauses before each send, which some programs need to
// avoid losing input that arrives before they have set up the terminal.
func WithDelayBeforeSend(d time.Duration) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		if d < 0 {
			return fmt.Errorf("delaybeforesend must not be negative, got %s", d)
		}
		c.delayBeforeSend = d
		return nil
	})
}

// withClock replaces the time source, for tests.
func withClock(now func() time.Time, sleep func(time.Duration)) Option {
	return sessionOptionImpl(func(c *sessionConfig) error {
		c.now = now
		c.sleep = sleep
		return nil
	})
}

func resolveSessionOptions(opts []Option) (*sessionConfig, error) {
	cfg := &sessionConfig{
		expectConfig: expectConfig{
			maxRead: DefaultMaxRead,
			timeout: DefaultTimeout,
		},
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySession(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply session option: %w", err)
		}
	}
	return cfg, nil
}

func (x *sessionConfig) resolveExpectOptions(opts []ExpectOption) (expectConfig, error) {
	cfg := x.expectConfig
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyExpect(&cfg); err != nil {
			return expectConfig{}, fmt.Errorf("failed to apply expect option: %w", err)
		}
	}
	return cfg, nil
}
