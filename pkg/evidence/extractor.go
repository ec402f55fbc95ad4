// Package evidence extracts the per-file facts consumed by detectors:
// digests, Shannon entropy and a bounded content sample. It has no notion of
// what is suspicious.
package evidence

import (
	"context"
	"crypto/md5" //nolint:gosec // legacy signature stores are keyed by MD5
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

// DefaultSampleSize bounds the content prefix retained for pattern search.
const DefaultSampleSize = 256 * 1024

var readBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 128*1024)
		return &buf
	},
}

// Extractor builds Evidence records. A single streaming pass computes every
// digest and the byte histogram, so large files are never held in memory.
type Extractor struct {
	fs         filesystem.FileSystem
	withMD5    bool
	sampleSize int
}

func NewExtractor(fsys filesystem.FileSystem, withMD5 bool) *Extractor {
	return &Extractor{fs: fsys, withMD5: withMD5, sampleSize: DefaultSampleSize}
}

var Now = time.Now

// Extract reads the whole file once and returns a fully populated Evidence,
// or an error and no Evidence at all.
func (e *Extractor) Extract(ctx context.Context, path string) (ev *datamodel.Evidence, err error) {
	info, err := e.fs.Stat(ctx, path)
	if err != nil {
		return nil, err
	}

	f, err := e.fs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Warn("could not close file correctly", slog.String("file", path), slog.String("error", closeErr.Error()))
		}
	}()

	sha := sha256.New()
	var md5sum hash.Hash
	if e.withMD5 {
		md5sum = md5.New() //nolint:gosec // legacy signature stores are keyed by MD5
	}

	var histogram [256]int64
	var total int64
	sample := make([]byte, 0, min(e.sampleSize, int(info.Size())))

	bufPtr, ok := readBufferPool.Get().(*[]byte)
	if !ok {
		return nil, errors.New("could not get read buffer from pool")
	}
	defer readBufferPool.Put(bufPtr)
	buf := *bufPtr

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			sha.Write(chunk)
			if md5sum != nil {
				md5sum.Write(chunk)
			}
			for _, b := range chunk {
				histogram[b]++
			}
			if room := e.sampleSize - len(sample); room > 0 {
				sample = append(sample, chunk[:min(room, n)]...)
			}
			total += int64(n)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, readErr
		}
	}

	ev = &datamodel.Evidence{
		Path:          path,
		Size:          total,
		Extension:     strings.ToLower(filepath.Ext(path)),
		Mode:          info.Mode(),
		SHA256:        hex.EncodeToString(sha.Sum(nil)),
		Entropy:       shannonEntropy(histogram, total),
		ContentSample: sample,
		ExtractedAt:   Now(),
	}
	if md5sum != nil {
		ev.MD5 = hex.EncodeToString(md5sum.Sum(nil))
	}
	return ev, nil
}

// shannonEntropy computes bits per byte over a 256-bucket frequency
// histogram. An empty input has entropy 0.
func shannonEntropy(histogram [256]int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
