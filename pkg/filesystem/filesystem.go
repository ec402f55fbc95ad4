// Package filesystem abstracts the read-only surface the scan engine needs,
// so a session can walk a local tree or an S3 prefix through the same
// interface.
package filesystem

import (
	"context"
	"io"
	"io/fs"
	"strings"
)

type FileSystem interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	Lstat(ctx context.Context, name string) (fs.FileInfo, error)
	ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error)
	Join(elem ...string) string
}

// IsS3Path reports whether a scan root refers to an S3 object store.
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, "s3://")
}
