// Package config holds the scanner's on-disk configuration and its defaults.
package config

import (
	"time"

	"github.com/alecthomas/units"
)

var Version = "dev"

var (
	DefaultWorkers           = 4
	DefaultFileTimeout       = 30 * time.Second
	DefaultModificationDelay = 30 * time.Second
	DefaultMaxFileSize       = "100MiB"
	DefaultProgressEvery     = int64(100)
)

// MonitoringConfig tunes the filesystem watcher.
type MonitoringConfig struct {
	PreScan           bool          `yaml:"pre-scan" mapstructure:"pre-scan"`
	Period            time.Duration `yaml:"period" mapstructure:"period"`
	ModificationDelay time.Duration `yaml:"mod-delay" mapstructure:"mod-delay"`
}

// S3Config configures scans of s3:// roots.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Region          string `yaml:"region" mapstructure:"region"`
	AccessKeyID     string `yaml:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `yaml:"secret-access-key" mapstructure:"secret-access-key"`
	Insecure        bool   `yaml:"insecure" mapstructure:"insecure"`
	UsePathStyle    bool   `yaml:"use-path-style" mapstructure:"use-path-style"`
}

type Config struct {
	Config        string           `yaml:"config" mapstructure:"config" desc:"path to configuration file"`
	Paths         []string         `yaml:"paths" mapstructure:"paths" desc:"paths scanned when none are given on the command line"`
	Workers       int              `yaml:"workers" mapstructure:"workers" desc:"number of concurrent scan workers"`
	MaxFileSize   string           `yaml:"max-file-size" mapstructure:"max-file-size" desc:"maximum file size to scan (e.g. 100MiB)"`
	FileTimeout   time.Duration    `yaml:"file-timeout" mapstructure:"file-timeout" desc:"time allowed to evaluate each file"`
	ProgressEvery int64            `yaml:"progress-every" mapstructure:"progress-every" desc:"emit a progress log every N evaluated files"`
	SignatureDB   string           `yaml:"signature-db" mapstructure:"signature-db" desc:"path to the sqlite signature database (empty for the platform default or built-in signatures)"`
	Report        string           `yaml:"report" mapstructure:"report" desc:"file path for scan reports (empty prints to stdout)"`
	Verbose       bool             `yaml:"verbose" mapstructure:"verbose" desc:"report clean files, not just detections"`
	Debug         bool             `yaml:"debug" mapstructure:"debug" desc:"print debug strings"`
	Monitoring    MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	S3            S3Config         `yaml:"s3" mapstructure:"s3"`
}

// MaxFileSizeBytes parses the human-readable size limit.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" {
		c.MaxFileSize = DefaultMaxFileSize
	}
	return units.ParseStrictBytes(c.MaxFileSize)
}
