package expect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joeycumines/logiface"
)

// Match is the result of a successful [Session.Expect].
type Match struct {
	// Pattern is the pattern that matched.
	Pattern Pattern

	// Before holds the bytes that preceded the match. For the [EOF] and
	// [TIMEOUT] sentinels it holds the whole buffer.
	Before []byte

	// After holds exactly the matched bytes, and is nil for sentinels.
	After []byte

	// Groups holds the capture groups of a regular expression match, with
	// Groups[0] being the whole match. Groups that did not participate are
	// nil. It is nil for literals and sentinels.
	Groups [][]byte

	// Index is the position of Pattern in the list passed to the call.
	Index int
}

// IsEOF reports whether the match is the [EOF] sentinel.
func (x *Match) IsEOF() bool { return x != nil && x.Pattern == EOF }

// IsTimeout reports whether the match is the [TIMEOUT] sentinel.
func (x *Match) IsTimeout() bool { return x != nil && x.Pattern == TIMEOUT }

// Session drives a single [Channel], matching its output against patterns.
//
// A Session is not safe for concurrent use. It exclusively owns its
// Channel, which is released by [Session.Close].
type Session struct {
	ch        Channel
	cfg       *sessionConfig
	logger    *logiface.Logger[logiface.Event]
	buf       buffer
	err       error // sticky fatal error
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New binds a session to an established channel.
func New(ch Channel, opts ...Option) (*Session, error) {
	if ch == nil {
		return nil, errors.New("expect: nil channel")
	}
	cfg, err := resolveSessionOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ch:     ch,
		cfg:    cfg,
		logger: cfg.logger,
	}
	s.buf.logRead = cfg.logRead
	return s, nil
}

// Expect waits until one of patterns matches the channel output, returning
// the match. Patterns are compiled for this call only, see [Session.ExpectSet]
// to reuse a [PatternSet].
//
// If the channel closes first it fails with [*EOFError], unless [EOF] is in
// patterns. If the timeout elapses first it fails with [*TimeoutError],
// unless [TIMEOUT] is in patterns. Unmatched bytes are never discarded.
func (s *Session) Expect(ctx context.Context, patterns []Pattern, opts ...ExpectOption) (*Match, error) {
	set, err := Compile(patterns...)
	if err != nil {
		return nil, err
	}
	return s.ExpectSet(ctx, set, opts...)
}

// ExpectString is a convenience for [Session.Expect] with [Exact] patterns.
func (s *Session) ExpectString(ctx context.Context, literals ...string) (*Match, error) {
	return s.ExpectExact(ctx, literals)
}

// ExpectExact is [Session.ExpectString] with per-call options.
func (s *Session) ExpectExact(ctx context.Context, literals []string, opts ...ExpectOption) (*Match, error) {
	patterns := make([]Pattern, len(literals))
	for i, v := range literals {
		patterns[i] = Exact(v)
	}
	return s.Expect(ctx, patterns, opts...)
}

// ExpectSet is [Session.Expect] with a precompiled [PatternSet].
func (s *Session) ExpectSet(ctx context.Context, set *PatternSet, opts ...ExpectOption) (*Match, error) {
	if set == nil {
		return nil, &PatternError{Index: -1, Err: errors.New("nil pattern set")}
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	cfg, err := s.cfg.resolveExpectOptions(opts)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int(`patterns`, set.Len()).
		Dur(`timeout`, cfg.timeout).
		Int(`buffered`, s.buf.len()).
		Log(`expect started`)

	e, stop := s.newEngine(ctx, cfg)
	defer stop()
	return e.expect(ctx, set)
}

// ReadNonblocking returns up to size bytes. Bytes already buffered (and not
// yet consumed by a match) are returned first, without reading. Otherwise
// it waits for the channel to become readable, subject to the timeout, and
// performs a single read. It fails with [*TimeoutError] or [*EOFError] like
// [Session.Expect].
func (s *Session) ReadNonblocking(ctx context.Context, size int, opts ...ExpectOption) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("expect: read size must be positive, got %d", size)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.buf.len() > 0 {
		return s.buf.consume(size), nil
	}
	cfg, err := s.cfg.resolveExpectOptions(opts)
	if err != nil {
		return nil, err
	}

	e, stop := s.newEngine(ctx, cfg)
	defer stop()
	r, err := e.fill(ctx, size)
	if err != nil {
		return nil, err
	}
	switch r {
	case fillEOF:
		return nil, &EOFError{Buffer: s.buf.snapshot()}
	case fillTimeout:
		return nil, &TimeoutError{Buffer: s.buf.snapshot(), Duration: cfg.timeout}
	}
	return s.buf.consume(size), nil
}

// ReadLine reads through the next "\r\n", or end of stream, returning the
// line including its terminator. An empty result means end of stream.
func (s *Session) ReadLine(ctx context.Context, opts ...ExpectOption) ([]byte, error) {
	m, err := s.ExpectSet(ctx, readLinePatterns, opts...)
	if err != nil {
		return nil, err
	}
	return append(m.Before, m.After...), nil
}

var readLinePatterns, _ = Compile(Exact("\r\n"), EOF)

// Write is an alias of [Session.Send], implementing [io.Writer].
func (s *Session) Write(p []byte) (int, error) {
	return s.Send(p)
}

// Send writes all of p to the channel, retrying short writes.
func (s *Session) Send(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if s.cfg.delayBeforeSend > 0 {
		s.cfg.sleep(s.cfg.delayBeforeSend)
	}
	var total int
	for total < len(p) {
		n, err := s.ch.Write(p[total:])
		if n < 0 || n > len(p)-total {
			return total, s.fail(&ChannelError{Op: "write", Err: errors.New("invalid write count")})
		}
		if n > 0 && s.cfg.logSend != nil {
			_, _ = s.cfg.logSend.Write(p[total : total+n])
		}
		total += n
		if err != nil {
			return total, s.fail(&ChannelError{Op: "write", Err: err})
		}
		if n == 0 {
			return total, s.fail(&ChannelError{Op: "write", Err: errors.New("no progress")})
		}
	}
	s.logger.Debug().
		Int(`bytes`, total).
		Log(`expect sent`)
	return total, nil
}

// SendString is [Session.Send] for a string.
func (s *Session) SendString(v string) (int, error) {
	return s.Send([]byte(v))
}

// SendLine sends v followed by a newline.
func (s *Session) SendLine(v string) (int, error) {
	return s.Send([]byte(v + "\n"))
}

// SendControl sends the control character for the given key, e.g. 'c' for
// ctrl-c (ETX). Characters outside the '@' to '_' (or 'a' to 'z') range, and
// '?' (DEL), are rejected.
func (s *Session) SendControl(char rune) (int, error) {
	b, ok := controlByte(char)
	if !ok {
		return 0, fmt.Errorf("expect: no control character for %q", char)
	}
	return s.Send([]byte{b})
}

func controlByte(char rune) (byte, bool) {
	switch {
	case char >= 'a' && char <= 'z':
		return byte(char-'a') + 1, true
	case char >= '@' && char <= '_':
		return byte(char - '@'), true
	case char == '?':
		return 0x7f, true
	default:
		return 0, false
	}
}

// IsAlive reports whether the channel is still connected. The check never
// consumes pending input.
func (s *Session) IsAlive() bool {
	if s.closed {
		return false
	}
	return s.ch.IsAlive()
}

// IsTTY reports whether the channel is a terminal device.
func (s *Session) IsTTY() bool {
	if s.closed {
		return false
	}
	if t, ok := s.ch.(TTY); ok {
		return t.IsTTY()
	}
	return false
}

// Buffer returns a copy of the bytes received but not yet consumed.
func (s *Session) Buffer() []byte {
	return s.buf.snapshot()
}

// Closed reports whether [Session.Close] has been called.
func (s *Session) Closed() bool {
	return s.closed
}

// Close releases the channel. It is idempotent, and subsequent operations
// fail with [ErrClosed].
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		if err := s.ch.Close(); err != nil {
			s.closeErr = fmt.Errorf("expect: close: %w", err)
		}
		s.logger.Debug().Log(`expect closed`)
	})
	return s.closeErr
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// fail records a fatal channel error.
func (s *Session) fail(err error) error {
	var ce *ChannelError
	if errors.As(err, &ce) {
		if s.err == nil {
			s.err = err
		}
		s.logger.Err().
			Err(err).
			Log(`expect channel failed`)
	}
	return err
}
