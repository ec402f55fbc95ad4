package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sentinelx/host-scanner/pkg/config"
	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/detector"
	"github.com/sentinelx/host-scanner/pkg/engine"
	"github.com/sentinelx/host-scanner/pkg/evidence"
	"github.com/sentinelx/host-scanner/pkg/filesystem"
	"github.com/sentinelx/host-scanner/pkg/monitor"
	"github.com/sentinelx/host-scanner/pkg/signature"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var conf = &config.Config{
	Config:        config.DefaultConfigPath,
	Workers:       config.DefaultWorkers,
	MaxFileSize:   config.DefaultMaxFileSize,
	FileTimeout:   config.DefaultFileTimeout,
	ProgressEvery: config.DefaultProgressEvery,
	Monitoring: config.MonitoringConfig{
		ModificationDelay: config.DefaultModificationDelay,
	},
}

func initConfig() {
	if conf.Config == "" {
		cfg, err := config.GetConfigFile()
		if err != nil {
			logger.Error("could not create config file", slog.String("location", cfg))
		}
		conf.Config = cfg
	}
	viper.SetConfigFile(conf.Config)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		logger.Error("can't read config", slog.String("error", err.Error()))
		return
	}
	if err := viper.Unmarshal(conf); err != nil {
		logger.Error("can't unmarshal config", slog.String("error", err.Error()))
	}
}

func initRoot(rootCmd *cobra.Command) {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&conf.Config, "config", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().IntVar(&conf.Workers, "workers", config.DefaultWorkers, "Number of concurrent workers for file evaluation (affects CPU usage)")
	rootCmd.PersistentFlags().StringVar(&conf.MaxFileSize, "max-file-size", config.DefaultMaxFileSize, "Maximum file size to scan (e.g., '100MiB'). Larger files are skipped and counted")
	rootCmd.PersistentFlags().DurationVar(&conf.FileTimeout, "file-timeout", config.DefaultFileTimeout, "Time allowed to evaluate each file")
	rootCmd.PersistentFlags().Int64Var(&conf.ProgressEvery, "progress-every", config.DefaultProgressEvery, "Emit a progress log every N evaluated files")
	rootCmd.PersistentFlags().StringVar(&conf.SignatureDB, "signature-db", "", "Path to the sqlite signature database (leave empty for the built-in signature set)")
	rootCmd.PersistentFlags().StringVar(&conf.Report, "report", "", "File path for scan reports (leave empty to print to stdout)")
	rootCmd.PersistentFlags().BoolVarP(&conf.Verbose, "verbose", "v", conf.Verbose, "Report all scanned files, including clean files (not just detections)")
	rootCmd.PersistentFlags().BoolVarP(&conf.Debug, "debug", "d", conf.Debug, "print debug strings")

	rootCmd.PersistentFlags().StringVar(&conf.S3.Endpoint, "s3-endpoint", "", "Object store endpoint for s3:// scan roots")
	rootCmd.PersistentFlags().StringVar(&conf.S3.Region, "s3-region", "", "Object store region")
	rootCmd.PersistentFlags().BoolVar(&conf.S3.Insecure, "s3-insecure", false, "do not check object store certificates")

	monitoringCmd.PersistentFlags().BoolVar(&conf.Monitoring.PreScan, "pre-scan", false, "Immediately scan all existing files in monitored paths when monitoring starts")
	monitoringCmd.PersistentFlags().DurationVar(&conf.Monitoring.Period, "scan-period", 0, "Time interval between periodic re-scans (e.g., '1h', '30m'; zero disables)")
	monitoringCmd.PersistentFlags().DurationVar(&conf.Monitoring.ModificationDelay, "mod-delay", config.DefaultModificationDelay, "Wait time after file modification before scanning (e.g., '30s', prevents scanning incomplete writes)")
}

var rootCmd = &cobra.Command{
	Use:   "sentinelx",
	Short: "SentinelX host scanner evaluates files against signature, heuristic, behavioral and model detectors",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		err = yaml.NewEncoder(os.Stdout).Encode(conf)
		if err != nil {
			logger.Error("error encode yaml conf", slog.String("err", err.Error()))
			return
		}
		if err = cmd.Usage(); err != nil {
			return
		}
		return
	},
}

func setupDebug() {
	if !conf.Debug {
		return
	}
	LogLevel.Set(slog.LevelDebug)
	engine.LogLevel.Set(slog.LevelDebug)
	detector.LogLevel.Set(slog.LevelDebug)
	evidence.LogLevel.Set(slog.LevelDebug)
	signature.LogLevel.Set(slog.LevelDebug)
	monitor.LogLevel.Set(slog.LevelDebug)
	datamodel.LogLevel.Set(slog.LevelDebug)
	logger.Debug("debug activated")
}

// sessionOptions assembles engine options from the loaded configuration.
// The returned closer releases the signature store.
func sessionOptions(ctx context.Context, paths []string) (opts engine.Options, closer func(), err error) {
	closer = func() {}
	store, err := openStore()
	if err != nil {
		return
	}
	closer = func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("could not close signature store", slog.String("error", closeErr.Error()))
		}
	}

	var fsys filesystem.FileSystem = filesystem.NewLocal()
	if anyS3(paths) {
		fsys, err = filesystem.NewS3(ctx, filesystem.S3Config{
			Endpoint:        conf.S3.Endpoint,
			Region:          conf.S3.Region,
			AccessKeyID:     conf.S3.AccessKeyID,
			SecretAccessKey: conf.S3.SecretAccessKey,
			Insecure:        conf.S3.Insecure,
			UsePathStyle:    conf.S3.UsePathStyle,
		})
		if err != nil {
			return
		}
	}

	opts = engine.Options{
		Store:         store,
		FS:            fsys,
		Workers:       conf.Workers,
		FileTimeout:   conf.FileTimeout,
		ProgressEvery: conf.ProgressEvery,
	}
	return
}

// openStore opens the configured signature database, falling back to the
// platform database when one exists and to the built-in seed set otherwise.
func openStore() (signature.Store, error) {
	location := conf.SignatureDB
	if location == "" {
		if _, err := os.Stat(config.DefaultSignatureDBPath); err == nil {
			location = config.DefaultSignatureDBPath
		} else {
			return signature.DefaultStore(), nil
		}
	}
	return signature.OpenSQLite(location)
}

func anyS3(paths []string) bool {
	for _, p := range paths {
		if filesystem.IsS3Path(p) {
			return true
		}
	}
	return false
}

func checkPaths(_ *cobra.Command, args []string) error {
	pathsToScan := args
	pathsToScan = append(pathsToScan, conf.Paths...)
	if len(pathsToScan) < 1 {
		return errors.New("at least one path is mandatory")
	}
	for _, path := range pathsToScan {
		if filesystem.IsS3Path(path) {
			continue
		}
		if _, err := os.Stat(filepath.Clean(path)); err != nil {
			return fmt.Errorf("could not check path %s: %w", path, err)
		}
	}
	return nil
}
