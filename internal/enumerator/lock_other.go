//go:build !unix && !windows

package enumerator

import "github.com/hupe1980/mapindex/internal/fs"

func lockFile(fs.File) error { return nil }

func unlockFile(fs.File) error { return nil }
