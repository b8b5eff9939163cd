//go:build linux

package record

import (
	"os"

	"golang.org/x/sys/unix"
)

// createExclusive opens path for writing, failing with os.ErrExist if it is
// already present.
func createExclusive(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}
