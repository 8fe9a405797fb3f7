// Package expect automates interaction with a duplex byte stream, such as a
// pseudo-terminal, pipe or socket, by waiting for patterns to appear in its
// output. It is modelled on the expect family of tools (Tcl expect, pexpect).
//
// A [Session] drives exactly one [Channel]. Each call to [Session.Expect]
// reads from the channel, in chunks bounded by [WithMaxRead], until one of
// the given patterns matches the accumulated output, the stream closes, or
// the timeout elapses. The bytes preceding the match, and the match itself,
// are returned as a [Match] and removed from the buffer. Unmatched bytes are
// kept for the next call.
//
// Patterns are identified by their position in the list. When several match,
// the one starting earliest in the buffer wins, and ties go to the lowest
// position. The sentinels [EOF] and [TIMEOUT] turn the corresponding
// outcomes into matches, instead of errors.
//
// Waits are interrupt safe: a wait cut short (e.g. by a signal, such as
// SIGWINCH) is retried against the deadline fixed when the call started, so
// a session never times out early, or late.
//
// Basic usage, over an established connection:
//
//	ch, err := expect.NewSocketChannel(conn)
//	if err != nil {
//	    return err
//	}
//	s, err := expect.New(ch, expect.WithTimeout(5*time.Second))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if _, err := s.ExpectString(ctx, "login: "); err != nil {
//	    return err
//	}
//	if _, err := s.SendLine("guest"); err != nil {
//	    return err
//	}
//	m, err := s.Expect(ctx, []expect.Pattern{expect.Regex(`\$ $`), expect.EOF})
//	if err != nil {
//	    return err
//	}
//	if m.IsEOF() {
//	    // closed, with m.Before holding all remaining output
//	}
//
// Channel backends for unix file descriptors (e.g. a pty master from
// github.com/creack/pty) and sockets are provided by [NewFileChannel] and
// [NewSocketChannel]. Any other transport may implement [Channel].
package expect
