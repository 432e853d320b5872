package mapindex

import (
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v3"
)

// openPaths holds the absolute paths of storages open in this process.
var openPaths = xsync.NewMapOf[string, struct{}]()

// acquirePath registers path as open. The returned func releases it.
func acquirePath(path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, loaded := openPaths.LoadOrStore(abs, struct{}{}); loaded {
		return nil, ErrAlreadyOpen
	}
	return func() { openPaths.Delete(abs) }, nil
}
