package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
	"golift.io/xtractr"
)

// archiveExtensions lists the container formats expanded during deep scans.
var archiveExtensions = map[string]struct{}{
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".rar": {}, ".7z": {},
}

func isArchiveExtension(ext string) bool {
	_, ok := archiveExtensions[strings.ToLower(ext)]
	return ok
}

// ExtractFile could be used to override xtractr.ExtractFile method
var ExtractFile = func(archiveLocation, outputDir string) (size int64, files []string, volumes []string, err error) {
	xFile := &xtractr.XFile{
		FilePath:  archiveLocation,
		OutputDir: outputDir,
		FileMode:  0o755,
		DirMode:   0o755,
	}
	return xtractr.ExtractFile(xFile)
}

// expandArchive extracts one archive to a temp directory and evaluates each
// member that passes the policy filters. Members are reported under the
// "archive.zip!inner/path" convention. Expansion is one level: nested
// archives are evaluated as files but not re-extracted.
func (e *engine) expandArchive(ctx context.Context, path, displayPath string) {
	if _, ok := e.fs.(filesystem.Local); !ok {
		// extraction needs a real local path
		return
	}
	archiveLogger := logger.With(slog.String("archive", displayPath))

	outputDir, err := os.MkdirTemp(os.TempDir(), uuid.NewString())
	if err != nil {
		archiveLogger.Warn("could not create extraction folder", slog.String("error", err.Error()))
		e.stats.skip(datamodel.SkipIOError)
		return
	}
	defer func() {
		if rmErr := os.RemoveAll(outputDir); rmErr != nil {
			archiveLogger.Error("could not remove temp folder", slog.String("folder", outputDir), slog.String("error", rmErr.Error()))
		}
	}()

	_, files, _, err := ExtractFile(path, outputDir)
	if err != nil {
		archiveLogger.Warn("could not extract archive", slog.String("error", err.Error()))
		e.stats.skip(datamodel.SkipIOError)
		return
	}

	for _, member := range files {
		if ctx.Err() != nil {
			return
		}
		info, err := os.Lstat(member)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !e.policy.AllowsExtension(filepath.Ext(member)) {
			e.stats.skip(datamodel.SkipExtensionFilter)
			continue
		}
		if e.policy.MaxFileSize > 0 && info.Size() > e.policy.MaxFileSize {
			e.stats.skip(datamodel.SkipSizeLimit)
			continue
		}
		rel, err := filepath.Rel(outputDir, member)
		if err != nil {
			rel = filepath.Base(member)
		}
		e.process(ctx, member, displayPath+"!"+filepath.ToSlash(rel))
	}
}
