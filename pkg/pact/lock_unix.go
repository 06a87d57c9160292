//go:build unix

package pact

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockPath takes an advisory exclusive lock on a sidecar lock file next
// to the target path. The returned function releases the lock.
func lockPath(path string) (func(), error) {
	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		_ = lockFile.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		_ = lockFile.Close()
	}, nil
}
