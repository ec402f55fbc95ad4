package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/engine"
	"github.com/spf13/cobra"
)

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Scan high-traffic user areas (downloads, desktop, temp)",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		setupDebug()
		policy := engine.QuickPolicy()
		return runScan(cmd, policy, nil)
	},
}

var deepCmd = &cobra.Command{
	Use:   "deep",
	Short: "Scan system and user areas, expanding archives",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		setupDebug()
		policy := engine.DeepPolicy()
		return runScan(cmd, policy, nil)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the given paths",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		setupDebug()
		paths := append(args, conf.Paths...)
		policy := engine.CustomPolicy(paths[0])
		policy.RootPaths = paths
		return runScan(cmd, policy, paths)
	},
	Args: checkPaths,
}

// runScan executes one session with the shared configuration applied on top
// of the profile policy.
func runScan(cmd *cobra.Command, policy engine.Policy, paths []string) (err error) {
	maxSize, err := conf.MaxFileSizeBytes()
	if err != nil {
		logger.Error("invalid max file size", slog.String("value", conf.MaxFileSize), slog.String("error", err.Error()))
		return err
	}
	policy.MaxFileSize = maxSize

	opts, closer, err := sessionOptions(cmd.Context(), paths)
	if err != nil {
		logger.Error("could not set up scan session", slog.String("error", err.Error()))
		return err
	}
	defer closer()
	opts.Progress = func(scanned int64, path string) {
		logger.Info("scan progress", slog.Int64("files-scanned", scanned), slog.String("current", path))
	}

	session := engine.NewSession(policy, opts)
	result := session.Run(cmd.Context())
	logger.Info("scan finished",
		slog.String("scan-id", result.ScanID),
		slog.String("profile", result.Profile),
		slog.Int64("files-scanned", result.Statistics.FilesScanned),
		slog.Int64("suspicious", result.Statistics.SuspiciousCount),
		slog.Int64("malicious", result.Statistics.MaliciousCount),
		slog.Int64("errors", result.Statistics.ErrorCount),
		slog.String("status", string(result.Statistics.Status)),
	)
	return writeResult(result)
}

// writeResult reports verdicts to the configured location. Clean files are
// reported only in verbose mode.
func writeResult(result *datamodel.Result) (err error) {
	filtered := *result
	if !conf.Verbose {
		filtered.Verdicts = result.Threats()
	}
	if conf.Report == "" {
		report, err := datamodel.GenerateReport(&filtered)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, report)
		return err
	}
	return writeVerdicts(filtered.Verdicts...)
}

// writeVerdicts appends verdicts to the report file, or prints them when no
// report location is configured.
func writeVerdicts(verdicts ...datamodel.Verdict) (err error) {
	if conf.Report == "" {
		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		for _, verdict := range verdicts {
			if err = out.Encode(verdict); err != nil {
				return
			}
		}
		return
	}
	f, err := os.OpenFile(filepath.Clean(conf.Report), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	writer := datamodel.NewReportsWriter(f)
	for _, verdict := range verdicts {
		if err = writer.Write(verdict); err != nil {
			return
		}
	}
	return
}
