//go:build windows

package pact

import "os"

// lockPath approximates an advisory lock on Windows by exclusively
// creating a sidecar lock file. Writers briefly spin until the holder
// removes it.
func lockPath(path string) (func(), error) {
	lockName := path + ".lock"
	for {
		f, err := os.OpenFile(lockName, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			return func() {
				_ = f.Close()
				_ = os.Remove(lockName)
			}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
	}
}
