package filesystem

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements FileSystem on the host filesystem.
type Local struct{}

var _ FileSystem = Local{}

func NewLocal() Local { return Local{} }

func (Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Clean(name))
}

func (Local) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (Local) Lstat(_ context.Context, name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

func (Local) ReadDir(_ context.Context, name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (Local) Join(elem ...string) string {
	return filepath.Join(elem...)
}
