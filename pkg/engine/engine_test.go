package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testPolicy(root string) Policy {
	return Policy{
		Profile:     "custom",
		RootPaths:   []string{root},
		MaxDepth:    customScanDepth,
		MaxFileSize: DefaultMaxFileSize,
	}
}

func findVerdict(t *testing.T, result *datamodel.Result, path string) datamodel.Verdict {
	t.Helper()
	for _, v := range result.Verdicts {
		if v.Path == path {
			return v
		}
	}
	t.Fatalf("no verdict for %s in %+v", path, result.Verdicts)
	return datamodel.Verdict{}
}

func TestSessionRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clean.txt"), []byte("hello world"))
	writeFile(t, filepath.Join(dir, "virus_keygen.exe"), make([]byte, 512))
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), []byte("nothing to see"))

	session := NewSession(testPolicy(dir), Options{Workers: 2})
	result := session.Run(context.Background())

	if result.ScanID == "" || result.Profile != "custom" {
		t.Errorf("Run() identity = %s/%s", result.ScanID, result.Profile)
	}
	if result.Statistics.Status != datamodel.StatusCompleted {
		t.Errorf("Run() status = %s, want completed", result.Statistics.Status)
	}
	if result.Statistics.FilesScanned != 3 {
		t.Errorf("Run() files scanned = %d, want 3", result.Statistics.FilesScanned)
	}

	clean := findVerdict(t, result, filepath.Join(dir, "clean.txt"))
	if clean.RiskScore != 0 || clean.Classification != datamodel.Clean {
		t.Errorf("clean.txt verdict = %+v", clean)
	}
	// small executable with a suspicious name trips the heuristic and model
	evil := findVerdict(t, result, filepath.Join(dir, "virus_keygen.exe"))
	if evil.Classification != datamodel.Malicious {
		t.Errorf("virus_keygen.exe verdict = %+v, want malicious", evil)
	}
	if len(result.Threats()) != 1 {
		t.Errorf("Threats() = %+v, want only virus_keygen.exe", result.Threats())
	}
}

func TestSessionVerdictOrderIsStable(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		writeFile(t, filepath.Join(dir, name), []byte("x"))
	}
	result := NewSession(testPolicy(dir), Options{Workers: 4}).Run(context.Background())
	var got []string
	for _, v := range result.Verdicts {
		got = append(got, filepath.Base(v.Path))
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt", "c.txt"}, got); diff != "" {
		t.Errorf("Run() verdict order mismatch:\n%s", diff)
	}
}

func TestSessionDepthLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.txt"), []byte("x"))
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), []byte("x"))

	policy := testPolicy(dir)
	policy.MaxDepth = 1
	result := NewSession(policy, Options{Workers: 1}).Run(context.Background())

	if result.Statistics.FilesScanned != 1 {
		t.Errorf("Run() files scanned = %d, want 1", result.Statistics.FilesScanned)
	}
	if result.Statistics.Skips[datamodel.SkipDepthLimit] != 1 {
		t.Errorf("Run() skips = %+v, want one depth-limit", result.Statistics.Skips)
	}
}

func TestSessionExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "payload.exe"), []byte("x"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("x"))

	policy := testPolicy(dir)
	policy.Extensions = extensionSet([]string{".exe"})
	result := NewSession(policy, Options{Workers: 1}).Run(context.Background())

	if result.Statistics.FilesScanned != 1 {
		t.Errorf("Run() files scanned = %d, want 1", result.Statistics.FilesScanned)
	}
	if result.Statistics.Skips[datamodel.SkipExtensionFilter] != 1 {
		t.Errorf("Run() skips = %+v, want one extension-filter", result.Statistics.Skips)
	}
}

func TestSessionSizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.bin"), make([]byte, 100))
	writeFile(t, filepath.Join(dir, "small.bin"), make([]byte, 5))

	policy := testPolicy(dir)
	policy.MaxFileSize = 10
	result := NewSession(policy, Options{Workers: 1}).Run(context.Background())

	if result.Statistics.FilesScanned != 1 {
		t.Errorf("Run() files scanned = %d, want 1", result.Statistics.FilesScanned)
	}
	if result.Statistics.Skips[datamodel.SkipSizeLimit] != 1 {
		t.Errorf("Run() skips = %+v, want one size-limit", result.Statistics.Skips)
	}
}

func TestSessionDoesNotFollowSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeFile(t, target, []byte("x"))
	if err := os.Symlink(target, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	result := NewSession(testPolicy(dir), Options{Workers: 1}).Run(context.Background())

	if result.Statistics.FilesScanned != 1 {
		t.Errorf("Run() files scanned = %d, want 1", result.Statistics.FilesScanned)
	}
	if result.Statistics.Skips[datamodel.SkipSymlink] != 1 {
		t.Errorf("Run() skips = %+v, want one symlink", result.Statistics.Skips)
	}
}

// failOpenFS refuses to open one path and defers everything else to the
// local filesystem.
type failOpenFS struct {
	filesystem.Local
	failPath string
}

func (f failOpenFS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name == f.failPath {
		return nil, errors.New("permission denied")
	}
	return f.Local.Open(ctx, name)
}

func TestSessionCountsReadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok.txt"), []byte("x"))
	writeFile(t, filepath.Join(dir, "locked.txt"), []byte("x"))

	fsys := failOpenFS{failPath: filepath.Join(dir, "locked.txt")}
	result := NewSession(testPolicy(dir), Options{Workers: 1, FS: fsys}).Run(context.Background())

	if result.Statistics.FilesScanned != 1 {
		t.Errorf("Run() files scanned = %d, want 1", result.Statistics.FilesScanned)
	}
	if result.Statistics.ErrorCount != 1 || result.Statistics.Skips[datamodel.SkipIOError] != 1 {
		t.Errorf("Run() statistics = %+v, want one io-error", result.Statistics)
	}
	if len(result.Verdicts) != 1 {
		t.Errorf("Run() verdicts = %+v, want only ok.txt", result.Verdicts)
	}
}

func TestSessionCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := NewSession(testPolicy(dir), Options{Workers: 1}).Run(ctx)

	if result.Statistics.Status != datamodel.StatusCancelled {
		t.Errorf("Run() status = %s, want cancelled", result.Statistics.Status)
	}
	if result.Statistics.FilesScanned != 0 {
		t.Errorf("Run() files scanned = %d, want 0", result.Statistics.FilesScanned)
	}
}

func TestSessionProgressCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := range 50 {
		writeFile(t, filepath.Join(dir, "f"+string(rune('a'+i%26))+string(rune('a'+i/26))+".txt"), []byte("x"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := NewSession(testPolicy(dir), Options{
		Workers:       1,
		ProgressEvery: 5,
		Progress:      func(int64, string) { cancel() },
	})
	result := session.Run(ctx)

	if result.Statistics.Status != datamodel.StatusCancelled {
		t.Errorf("Run() status = %s, want cancelled", result.Statistics.Status)
	}
	if result.Statistics.FilesScanned == 0 {
		t.Errorf("Run() files scanned = 0, want a partial count")
	}
}

func TestEvaluateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "virus_keygen.exe")
	writeFile(t, path, make([]byte, 512))

	session := NewSession(testPolicy(dir), Options{})
	verdict, err := session.EvaluateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("EvaluateFile() error = %v", err)
	}
	if verdict.Classification != datamodel.Malicious {
		t.Errorf("EvaluateFile() verdict = %+v, want malicious", verdict)
	}

	if _, err := session.EvaluateFile(context.Background(), filepath.Join(dir, "missing.exe")); err == nil {
		t.Errorf("EvaluateFile() expected error for missing file")
	}
}

func TestRunCustomScanPathNotFound(t *testing.T) {
	_, err := RunCustomScan(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("RunCustomScan() error = %v, want ErrPathNotFound", err)
	}
}

func TestPolicyProfiles(t *testing.T) {
	quick, deep, custom := QuickPolicy(), DeepPolicy(), CustomPolicy("/data")
	if quick.MaxDepth != 2 || deep.MaxDepth != 5 || custom.MaxDepth != 10 {
		t.Errorf("profile depths = %d/%d/%d", quick.MaxDepth, deep.MaxDepth, custom.MaxDepth)
	}
	if quick.WithMD5 || !deep.WithMD5 {
		t.Errorf("md5 flags = %v/%v", quick.WithMD5, deep.WithMD5)
	}
	if quick.ExpandArchives || !deep.ExpandArchives {
		t.Errorf("archive flags = %v/%v", quick.ExpandArchives, deep.ExpandArchives)
	}
	if quick.AllowsExtension(".docm") {
		t.Errorf("quick policy admits .docm")
	}
	if !deep.AllowsExtension(".DOCM") {
		t.Errorf("deep policy rejects .DOCM")
	}
	var unfiltered Policy
	if !unfiltered.AllowsExtension(".anything") {
		t.Errorf("nil extension set should admit everything")
	}
}
