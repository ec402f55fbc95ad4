package mock

import (
	"context"
	"io"
	"io/fs"
	"path"

	"github.com/sentinelx/host-scanner/pkg/filesystem"
)

// FileSystem is a mock implementation of filesystem.FileSystem for tests.
type FileSystem struct {
	OpenMock    func(ctx context.Context, name string) (io.ReadCloser, error)
	StatMock    func(ctx context.Context, name string) (fs.FileInfo, error)
	LstatMock   func(ctx context.Context, name string) (fs.FileInfo, error)
	ReadDirMock func(ctx context.Context, name string) ([]fs.DirEntry, error)
	JoinMock    func(elem ...string) string
}

var _ filesystem.FileSystem = &FileSystem{}

func (m *FileSystem) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if m.OpenMock != nil {
		return m.OpenMock(ctx, name)
	}
	panic("OpenMock not implemented")
}

func (m *FileSystem) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if m.StatMock != nil {
		return m.StatMock(ctx, name)
	}
	panic("StatMock not implemented")
}

func (m *FileSystem) Lstat(ctx context.Context, name string) (fs.FileInfo, error) {
	if m.LstatMock != nil {
		return m.LstatMock(ctx, name)
	}
	panic("LstatMock not implemented")
}

func (m *FileSystem) ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	if m.ReadDirMock != nil {
		return m.ReadDirMock(ctx, name)
	}
	panic("ReadDirMock not implemented")
}

func (m *FileSystem) Join(elem ...string) string {
	if m.JoinMock != nil {
		return m.JoinMock(elem...)
	}
	return path.Join(elem...)
}
