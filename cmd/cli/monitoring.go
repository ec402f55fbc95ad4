package cli

import (
	"context"
	"log/slog"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/engine"
	"github.com/sentinelx/host-scanner/pkg/monitor"
	"github.com/spf13/cobra"
)

var monitoringCmd = &cobra.Command{
	Use:   "monitoring",
	Short: "Watch locations and evaluate files as they appear or change",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		setupDebug()
		logger.Debug("config", slog.Any("config", conf))
		paths := append(args, conf.Paths...)

		maxSize, err := conf.MaxFileSizeBytes()
		if err != nil {
			logger.Error("invalid max file size", slog.String("value", conf.MaxFileSize), slog.String("error", err.Error()))
			return err
		}
		opts, closer, err := sessionOptions(cmd.Context(), nil)
		if err != nil {
			logger.Error("could not set up monitoring session", slog.String("error", err.Error()))
			return err
		}
		defer closer()

		policy := engine.DeepPolicy()
		policy.RootPaths = nil
		policy.MaxFileSize = maxSize
		session := engine.NewSession(policy, opts)

		mon, err := monitor.NewMonitor(func(path string) error {
			return evaluatePath(cmd.Context(), session, policy, path)
		}, monitor.Config{
			PreScan:      conf.Monitoring.PreScan,
			RescanPeriod: conf.Monitoring.Period,
			ModDelay:     conf.Monitoring.ModificationDelay,
		})
		if err != nil {
			return err
		}
		defer mon.Close()
		mon.Start()
		for _, path := range paths {
			if err = mon.Add(path); err != nil {
				logger.Error("could not watch path", slog.String("path", path), slog.String("error", err.Error()))
				return err
			}
			logger.Info("watching", slog.String("path", path))
		}
		<-cmd.Context().Done()
		return nil
	},
	Args: checkPaths,
}

// evaluatePath judges a single changed file, or runs a bounded sweep when the
// monitor hands us a directory (pre-scan and periodic rescans do that).
func evaluatePath(ctx context.Context, session *engine.Session, policy engine.Policy, path string) error {
	if info, err := session.FS().Stat(ctx, path); err == nil && info.IsDir() {
		sweep := policy
		sweep.RootPaths = []string{path}
		return writeResult(engine.NewSession(sweep, engine.Options{
			Detectors:   session.Detectors(),
			FS:          session.FS(),
			Workers:     conf.Workers,
			FileTimeout: conf.FileTimeout,
		}).Run(ctx))
	}
	verdict, err := session.EvaluateFile(ctx, path)
	if err != nil {
		return err
	}
	if verdict.Classification != datamodel.Clean {
		logger.Warn("threat detected",
			slog.String("path", verdict.Path),
			slog.String("classification", string(verdict.Classification)),
			slog.Int("risk-score", verdict.RiskScore),
		)
	}
	if !conf.Verbose && verdict.Classification == datamodel.Clean {
		return nil
	}
	return writeVerdicts(verdict)
}
