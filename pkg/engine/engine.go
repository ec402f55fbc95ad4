// Package engine walks scan roots, feeds candidate files to a worker pool
// and folds detector findings into per-file verdicts and session statistics.
package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/detector"
	"github.com/sentinelx/host-scanner/pkg/evidence"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

const candidateQueueSize = 256

// ProgressFunc is called from worker goroutines as files complete; it must be
// safe for concurrent use.
type ProgressFunc func(filesScanned int64, path string)

// stats aggregates counters across workers without a lock on the hot path.
type stats struct {
	filesScanned atomic.Int64
	suspicious   atomic.Int64
	malicious    atomic.Int64
	errors       atomic.Int64
	skipped      atomic.Int64

	skipMu sync.Mutex
	skips  map[datamodel.SkipReason]int64
}

func newStats() *stats {
	return &stats{skips: make(map[datamodel.SkipReason]int64)}
}

func (s *stats) skip(reason datamodel.SkipReason) {
	s.skipped.Add(1)
	if reason == datamodel.SkipIOError || reason == datamodel.SkipTimeout {
		s.errors.Add(1)
	}
	s.skipMu.Lock()
	s.skips[reason]++
	s.skipMu.Unlock()
}

func (s *stats) snapshot() datamodel.Statistics {
	s.skipMu.Lock()
	skips := make(map[datamodel.SkipReason]int64, len(s.skips))
	for k, v := range s.skips {
		skips[k] = v
	}
	s.skipMu.Unlock()
	if len(skips) == 0 {
		skips = nil
	}
	return datamodel.Statistics{
		FilesScanned:    s.filesScanned.Load(),
		SuspiciousCount: s.suspicious.Load(),
		MaliciousCount:  s.malicious.Load(),
		ErrorCount:      s.errors.Load(),
		SkippedCount:    s.skipped.Load(),
		Skips:           skips,
	}
}

// engine is the per-run state shared by the walker and the worker pool.
// Sessions create one engine per Run call and discard it afterwards.
type engine struct {
	fs            filesystem.FileSystem
	policy        Policy
	detectors     []detector.Detector
	extractor     *evidence.Extractor
	workers       int
	fileTimeout   time.Duration
	progress      ProgressFunc
	progressEvery int64

	queue chan string
	stats *stats

	verdictMu sync.Mutex
	verdicts  []datamodel.Verdict
}

// run drains every root through the worker pool and blocks until all queued
// candidates are evaluated or the context is cancelled.
func (e *engine) run(ctx context.Context) {
	var wg sync.WaitGroup
	for range e.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	for _, root := range e.policy.RootPaths {
		e.walk(ctx, root, 0)
	}
	close(e.queue)
	wg.Wait()
}

// walk visits path at the given depth below its root. Directory entries that
// fail policy checks are counted as skips, never queued.
func (e *engine) walk(ctx context.Context, path string, depth int) {
	if ctx.Err() != nil {
		return
	}
	info, err := e.fs.Lstat(ctx, path)
	if err != nil {
		// roots may legitimately be absent on this host
		if depth == 0 && errors.Is(err, fs.ErrNotExist) {
			logger.Debug("scan root does not exist", slog.String("path", path))
			return
		}
		logger.Warn("could not stat path", slog.String("path", path), slog.String("error", err.Error()))
		e.stats.skip(datamodel.SkipIOError)
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 && !e.policy.FollowSymlinks {
		e.stats.skip(datamodel.SkipSymlink)
		return
	}
	if depth > e.policy.MaxDepth {
		e.stats.skip(datamodel.SkipDepthLimit)
		return
	}
	if info.IsDir() {
		entries, err := e.fs.ReadDir(ctx, path)
		if err != nil {
			logger.Warn("could not read directory", slog.String("path", path), slog.String("error", err.Error()))
			e.stats.skip(datamodel.SkipIOError)
			return
		}
		for _, entry := range entries {
			e.walk(ctx, e.fs.Join(path, entry.Name()), depth+1)
		}
		return
	}
	if !e.policy.AllowsExtension(filepath.Ext(path)) {
		e.stats.skip(datamodel.SkipExtensionFilter)
		return
	}
	if e.policy.MaxFileSize > 0 && info.Size() > e.policy.MaxFileSize {
		e.stats.skip(datamodel.SkipSizeLimit)
		return
	}
	select {
	case e.queue <- path:
	case <-ctx.Done():
	}
}

func (e *engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(ctx, path, path)
		}
	}
}

// process extracts evidence for one file, runs the detectors and records the
// verdict. displayPath replaces the on-disk path in the verdict, which lets
// archive members report their logical location inside the archive.
func (e *engine) process(ctx context.Context, path, displayPath string) {
	fileCtx := ctx
	if e.fileTimeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(ctx, e.fileTimeout)
		defer cancel()
	}

	ev, err := e.extractor.Extract(fileCtx, path)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("file evaluation timed out", slog.String("path", displayPath))
			e.stats.skip(datamodel.SkipTimeout)
		default:
			logger.Warn("could not extract evidence", slog.String("path", displayPath), slog.String("error", err.Error()))
			e.stats.skip(datamodel.SkipIOError)
		}
		return
	}

	findings := detector.EvaluateAll(fileCtx, e.detectors, ev)
	verdict := detector.Aggregate(ev, findings)
	verdict.Path = displayPath
	e.record(verdict)

	if e.policy.ExpandArchives && path == displayPath && isArchiveExtension(ev.Extension) {
		e.expandArchive(ctx, path, displayPath)
	}
}

func (e *engine) record(verdict datamodel.Verdict) {
	e.verdictMu.Lock()
	e.verdicts = append(e.verdicts, verdict)
	e.verdictMu.Unlock()

	switch verdict.Classification {
	case datamodel.Suspicious:
		e.stats.suspicious.Add(1)
	case datamodel.Malicious:
		e.stats.malicious.Add(1)
	}
	scanned := e.stats.filesScanned.Add(1)
	if e.progress != nil && scanned%e.progressEvery == 0 {
		e.progress(scanned, verdict.Path)
	}
}
