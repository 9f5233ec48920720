package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Host kinds
const (
	HostFile = "file"
	HostS3   = "s3"
)

// Plane sources
const (
	PlaneSourcePixelBuffer = "pixel-buffer"
	PlaneSourceRender      = "render"
)

// Transport and watcher defaults
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultSettleDelay    = 100 * time.Millisecond
)

// Config holds all application configuration
type Config struct {
	// Watched directory and stores
	WatchDir     string `mapstructure:"watch-dir"`
	SettingsPath string `mapstructure:"settings-path"`
	SQLitePath   string `mapstructure:"sqlite-path"`

	// Volume host
	HostKind  string `mapstructure:"host-kind"`
	OutputDir string `mapstructure:"output-dir"`
	NRRDGzip  bool   `mapstructure:"nrrd-gzip"`

	// S3 configuration
	S3Bucket   string `mapstructure:"s3-bucket"`
	S3Region   string `mapstructure:"s3-region"`
	S3Prefix   string `mapstructure:"s3-prefix"`
	S3Endpoint string `mapstructure:"s3-endpoint"`

	// OMERO.web transport
	Scheme             string        `mapstructure:"scheme"`
	ConnectTimeout     time.Duration `mapstructure:"connect-timeout"`
	ReadTimeout        time.Duration `mapstructure:"read-timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure-skip-verify"`
	PlaneSource        string        `mapstructure:"plane-source"`

	// Watcher
	SettleDelay time.Duration `mapstructure:"settle-delay"`
	ScanOnStart bool          `mapstructure:"scan-on-start"`

	// Security limits
	MaxDescriptorSize int64 `mapstructure:"max-descriptor-size"`
	MaxVolumeBytes    int64 `mapstructure:"max-volume-bytes"`

	// Logging
	LogFile    string `mapstructure:"log-file"`
	LogMaxSize int    `mapstructure:"log-max-size"`
	LogMaxAge  int    `mapstructure:"log-max-age"`
	LogLevel   string `mapstructure:"log-level"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watch-dir", ".artifacts/inbox")
	v.SetDefault("settings-path", ".artifacts/settings.yaml")
	v.SetDefault("sqlite-path", ".artifacts/fetches.db")
	v.SetDefault("host-kind", HostFile)
	v.SetDefault("output-dir", ".artifacts/volumes")
	v.SetDefault("nrrd-gzip", true)
	v.SetDefault("s3-bucket", "")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("s3-prefix", "volumes/")
	v.SetDefault("s3-endpoint", "")
	v.SetDefault("scheme", "https")
	v.SetDefault("connect-timeout", DefaultConnectTimeout)
	v.SetDefault("read-timeout", DefaultReadTimeout)
	v.SetDefault("insecure-skip-verify", false)
	v.SetDefault("plane-source", PlaneSourcePixelBuffer)
	v.SetDefault("settle-delay", DefaultSettleDelay)
	v.SetDefault("scan-on-start", true)
	v.SetDefault("max-descriptor-size", 64*1024)
	v.SetDefault("max-volume-bytes", 2*1024*1024*1024)
	v.SetDefault("log-file", "")
	v.SetDefault("log-max-size", 100)
	v.SetDefault("log-max-age", 30)
	v.SetDefault("log-level", "info")
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration through v
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables (will be OMEROWATCH_WATCH_DIR, etc.)
	v.SetEnvPrefix("OMEROWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.omerowatch")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return fmt.Errorf("watch-dir cannot be empty")
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("settings-path cannot be empty")
	}
	switch c.HostKind {
	case HostFile:
		if c.OutputDir == "" {
			return fmt.Errorf("output-dir cannot be empty for host-kind %q", HostFile)
		}
	case HostS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3-bucket cannot be empty for host-kind %q", HostS3)
		}
	default:
		return fmt.Errorf("host-kind must be %q or %q, got %q", HostFile, HostS3, c.HostKind)
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", c.Scheme)
	}
	if c.PlaneSource != PlaneSourcePixelBuffer && c.PlaneSource != PlaneSourceRender {
		return fmt.Errorf("plane-source must be %q or %q, got %q", PlaneSourcePixelBuffer, PlaneSourceRender, c.PlaneSource)
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("connect-timeout and read-timeout must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle-delay must be non-negative")
	}
	if c.MaxDescriptorSize <= 0 {
		return fmt.Errorf("max-descriptor-size must be positive")
	}
	if c.MaxVolumeBytes <= 0 {
		return fmt.Errorf("max-volume-bytes must be positive")
	}
	return nil
}
