//go:build unix && !linux && !darwin

package expect

type fileOpsKevent = any
type fileOpsEpollEvent = any

const pollRDHUP = 0

func (x *fileOps) init() {}

func newDefaultWaiter(c *FileChannel) (waiter, error) {
	return newPollWaiter(c), nil
}
