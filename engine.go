package expect

import (
	"context"
	"fmt"
	"time"
)

// cancelPollInterval bounds each wait when the context may be cancelled and
// the channel cannot be woken.
const cancelPollInterval = 50 * time.Millisecond

type fillResult int

const (
	fillData fillResult = iota
	fillEOF
	fillTimeout
)

// engine carries the state of a single expect or read call. The deadline is
// fixed on construction.
type engine struct {
	s        *Session
	deadline time.Time
	cfg      expectConfig
	forever  bool
	sliced   bool
	probed   bool
}

func (s *Session) newEngine(ctx context.Context, cfg expectConfig) (*engine, func() bool) {
	e := &engine{
		s:       s,
		cfg:     cfg,
		forever: cfg.timeout < 0,
	}
	if !e.forever {
		e.deadline = s.cfg.now().Add(cfg.timeout)
	}
	stop := func() bool { return false }
	if ctx.Done() != nil {
		if w, ok := s.ch.(Waker); ok {
			stop = context.AfterFunc(ctx, func() { _ = w.Wake() })
		} else {
			e.sliced = true
		}
	}
	return e, stop
}

// expect runs the match loop: scan, then alternately wait and pull, until a
// pattern matches, the channel closes, or the deadline expires.
func (e *engine) expect(ctx context.Context, set *PatternSet) (*Match, error) {
	s := e.s
	var scanned int
	for {
		candidates, err := set.findAll(s.buf.data, s.buf.windowStart(e.cfg.searchWindowSize), scanned)
		if err != nil {
			return nil, err
		}
		if c, ok := selectCandidate(candidates); ok {
			return e.commit(set, c), nil
		}
		scanned = s.buf.len()

		r, err := e.fill(ctx, e.cfg.maxRead)
		if err != nil {
			return nil, err
		}
		switch r {
		case fillEOF:
			if set.eofIndex >= 0 {
				before := s.buf.consume(s.buf.len())
				s.logger.Debug().
					Int(`index`, set.eofIndex).
					Int(`before`, len(before)).
					Log(`expect matched eof`)
				return &Match{Index: set.eofIndex, Pattern: set.patterns[set.eofIndex], Before: before}, nil
			}
			s.logger.Info().
				Int(`buffered`, s.buf.len()).
				Log(`expect reached eof`)
			return nil, &EOFError{Buffer: s.buf.snapshot()}

		case fillTimeout:
			if set.timeoutIndex >= 0 {
				s.logger.Debug().
					Int(`index`, set.timeoutIndex).
					Int(`before`, s.buf.len()).
					Log(`expect matched timeout`)
				return &Match{Index: set.timeoutIndex, Pattern: set.patterns[set.timeoutIndex], Before: s.buf.snapshot()}, nil
			}
			s.logger.Info().
				Dur(`timeout`, e.cfg.timeout).
				Int(`buffered`, s.buf.len()).
				Log(`expect timed out`)
			return nil, &TimeoutError{Buffer: s.buf.snapshot(), Duration: e.cfg.timeout}
		}
	}
}

// commit partitions the buffer around the selected candidate.
func (e *engine) commit(set *PatternSet, c candidate) *Match {
	s := e.s
	var groups [][]byte
	if len(c.loc) > 2 || set.entries[c.index].kind == kindMatcher {
		groups = make([][]byte, len(c.loc)/2)
		for i := range groups {
			if lo, hi := c.loc[2*i], c.loc[2*i+1]; lo >= 0 && hi >= lo {
				groups[i] = append([]byte{}, s.buf.data[lo:hi]...)
			}
		}
	}
	before := s.buf.consume(c.start())
	after := s.buf.consume(c.end() - c.start())
	s.logger.Debug().
		Int(`index`, c.index).
		Int(`start`, c.start()).
		Int(`end`, c.end()).
		Log(`expect matched`)
	return &Match{
		Index:   c.index,
		Pattern: set.patterns[c.index],
		Before:  before,
		After:   after,
		Groups:  groups,
	}
}

// fill blocks until at least one byte has been appended to the buffer, the
// channel reaches end of stream, or the deadline expires. Interrupted waits
// are retried against the same deadline.
func (e *engine) fill(ctx context.Context, requested int) (fillResult, error) {
	s := e.s
	for {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("expect: %w", err)
		}
		if s.buf.eof {
			return fillEOF, nil
		}

		wait := Forever
		if !e.forever {
			wait = e.deadline.Sub(s.cfg.now())
			if wait <= 0 {
				if e.probed {
					return fillTimeout, nil
				}
				// one last non-blocking check for anything already pending
				e.probed = true
				wait = 0
			}
		}
		if e.sliced && (wait < 0 || wait > cancelPollInterval) {
			wait = cancelPollInterval
		}

		res, err := s.ch.Wait(wait)
		if err != nil {
			return 0, s.fail(&ChannelError{Op: "wait", Err: err})
		}

		switch res {
		case WaitInterrupted:
			s.logger.Debug().
				Dur(`wait`, wait).
				Log(`expect wait interrupted`)
			continue

		case WaitTimedOut:
			continue

		case WaitReady:
			n, pr, err := s.buf.pull(s.ch, requested, e.cfg.maxRead)
			if err != nil {
				return 0, s.fail(err)
			}
			switch pr {
			case pullData:
				s.logger.Trace().
					Int(`bytes`, n).
					Log(`expect read`)
				return fillData, nil
			case pullEOF:
				return fillEOF, nil
			}

		default:
			return 0, s.fail(&ChannelError{Op: "wait", Err: fmt.Errorf("unexpected wait result %s", res)})
		}
	}
}
