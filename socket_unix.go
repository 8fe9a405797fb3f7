//go:build unix

package expect

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// NewSocketChannel takes ownership of conn, which must expose its file
// descriptor, e.g. [*net.TCPConn] or [*net.UnixConn]. The descriptor is
// duplicated and conn is closed. On error, conn is left open.
func NewSocketChannel(conn net.Conn, opts ...FileOption) (*FileChannel, error) {
	fc, ok := conn.(interface{ File() (*os.File, error) })
	if !ok {
		return nil, fmt.Errorf("expect: connection type %T does not expose a file descriptor", conn)
	}
	f, err := fc.File()
	if err != nil {
		return nil, fmt.Errorf("expect: failed to get socket file: %w", err)
	}
	c, err := newFileChannel(f, true, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = conn.Close()
	return c, nil
}

func recvPeek(fd int, p []byte) (int, error) {
	n, _, err := unix.Recvfrom(fd, p, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return n, err
}
