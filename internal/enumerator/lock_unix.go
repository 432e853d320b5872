//go:build unix

package enumerator

import (
	"errors"

	"github.com/hupe1980/mapindex/internal/fs"
	"golang.org/x/sys/unix"
)

func lockFile(f fs.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return err
	}
	return nil
}

func unlockFile(f fs.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
