package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/detector"
	"github.com/sentinelx/host-scanner/pkg/evidence"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
	"github.com/sentinelx/host-scanner/pkg/signature"
)

// ErrPathNotFound is returned when a custom scan root does not exist.
var ErrPathNotFound = errors.New("path not found")

const (
	defaultFileTimeout   = 30 * time.Second
	defaultProgressEvery = 100
)

// Options tune a session beyond what the policy expresses. The zero value is
// usable: local filesystem, built-in signature store, default detector set.
type Options struct {
	Detectors     []detector.Detector
	Store         signature.Store
	FS            filesystem.FileSystem
	Indicators    detector.IndicatorSource
	Workers       int
	FileTimeout   time.Duration
	Progress      ProgressFunc
	ProgressEvery int64
}

// Session executes one scan policy. Sessions are single-use: each Run
// allocates fresh statistics, so reusing one only makes sense for EvaluateFile.
type Session struct {
	id        string
	policy    Policy
	fs        filesystem.FileSystem
	detectors []detector.Detector
	extractor *evidence.Extractor

	workers       int
	fileTimeout   time.Duration
	progress      ProgressFunc
	progressEvery int64
}

func NewSession(policy Policy, opts Options) *Session {
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewLocal()
	}
	detectors := opts.Detectors
	if detectors == nil {
		store := opts.Store
		if store == nil {
			store = signature.DefaultStore()
		}
		detectors = []detector.Detector{
			detector.NewSignature(store),
			detector.NewHeuristic(nil),
			detector.NewBehavioral(opts.Indicators),
			detector.NewAIModel(),
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	fileTimeout := opts.FileTimeout
	if fileTimeout <= 0 {
		fileTimeout = defaultFileTimeout
	}
	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}
	return &Session{
		id:            uuid.NewString(),
		policy:        policy,
		fs:            fsys,
		detectors:     detectors,
		extractor:     evidence.NewExtractor(fsys, policy.WithMD5),
		workers:       workers,
		fileTimeout:   fileTimeout,
		progress:      opts.Progress,
		progressEvery: progressEvery,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) FS() filesystem.FileSystem { return s.fs }

func (s *Session) Detectors() []detector.Detector { return s.detectors }

// Run walks every policy root and returns the complete result. Cancellation
// does not fail the run: the partial result is returned with a cancelled
// status.
func (s *Session) Run(ctx context.Context) *datamodel.Result {
	startedAt := time.Now()
	eng := &engine{
		fs:            s.fs,
		policy:        s.policy,
		detectors:     s.detectors,
		extractor:     s.extractor,
		workers:       s.workers,
		fileTimeout:   s.fileTimeout,
		progress:      s.progress,
		progressEvery: s.progressEvery,
		queue:         make(chan string, candidateQueueSize),
		stats:         newStats(),
	}
	eng.run(ctx)

	stats := eng.stats.snapshot()
	stats.StartedAt = startedAt
	stats.FinishedAt = time.Now()
	stats.Status = datamodel.StatusCompleted
	if ctx.Err() != nil {
		stats.Status = datamodel.StatusCancelled
	}

	// worker completion order is nondeterministic
	sort.Slice(eng.verdicts, func(i, j int) bool { return eng.verdicts[i].Path < eng.verdicts[j].Path })

	return &datamodel.Result{
		ScanID:     s.id,
		Profile:    s.policy.Profile,
		Verdicts:   eng.verdicts,
		Statistics: stats,
	}
}

// EvaluateFile runs the session's detectors against a single file, outside
// any traversal. The monitor uses it to judge files as they change.
func (s *Session) EvaluateFile(ctx context.Context, path string) (datamodel.Verdict, error) {
	if s.fileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fileTimeout)
		defer cancel()
	}
	ev, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return datamodel.Verdict{}, err
	}
	findings := detector.EvaluateAll(ctx, s.detectors, ev)
	return detector.Aggregate(ev, findings), nil
}

// RunQuickScan scans high-traffic user areas with the quick policy.
func RunQuickScan(ctx context.Context, opts Options) *datamodel.Result {
	return NewSession(QuickPolicy(), opts).Run(ctx)
}

// RunDeepScan scans system and user areas with the deep policy.
func RunDeepScan(ctx context.Context, opts Options) *datamodel.Result {
	return NewSession(DeepPolicy(), opts).Run(ctx)
}

// RunCustomScan scans a caller-supplied root, failing fast when it does not
// exist.
func RunCustomScan(ctx context.Context, root string, opts Options) (*datamodel.Result, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewLocal()
	}
	if _, err := fsys.Stat(ctx, root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, root)
		}
		return nil, err
	}
	opts.FS = fsys
	return NewSession(CustomPolicy(root), opts).Run(ctx), nil
}
