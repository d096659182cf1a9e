package fscache

import (
	"os"
	"time"
)

// FS is the local filesystem surface the cache client mutates. osFS is the
// only implementation; the package tests run it against temp directories.
type FS interface {
	Mkdir(path string, mode os.FileMode) error
	Stat(path string) (os.FileInfo, error)
	Chmod(path string, mode os.FileMode) error
	Chown(path string, uid, gid int) error
	Chtimes(path string, atime, mtime time.Time) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	CreateEmpty(path string, size int64) error
	CreateFromTemp(tmpPath, finalPath string) error
}

// osFS is the production FS backed by the real filesystem.
type osFS struct{}

func (osFS) Mkdir(path string, mode os.FileMode) error {
	return os.Mkdir(path, mode)
}

func (osFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (osFS) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (osFS) Chown(path string, uid, gid int) error {
	if uid < 0 || gid < 0 {
		return nil
	}
	return os.Chown(path, uid, gid)
}

func (osFS) Chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

func (osFS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (osFS) Remove(path string) error {
	return os.Remove(path)
}

// CreateEmpty creates a sparse placeholder file of the given size: writing
// a single null byte at size-1 makes the filesystem report the full size
// without allocating real blocks for the rest (§4.E LISTDIR step 3).
// size == 0 creates a genuinely empty file.
func (osFS) CreateEmpty(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if size > 0 {
		if _, err := f.WriteAt([]byte{0}, size-1); err != nil {
			return err
		}
	}
	return nil
}

// CreateFromTemp atomically renames a completed temp download into its
// final location (§4.E SYNC "send": "fetch ... into a temp file, rename
// into place").
func (osFS) CreateFromTemp(tmpPath, finalPath string) error {
	return os.Rename(tmpPath, finalPath)
}
