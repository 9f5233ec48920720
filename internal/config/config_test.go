package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.HostKind != HostFile {
		t.Errorf("HostKind = %q, want %q", cfg.HostKind, HostFile)
	}
	if cfg.ConnectTimeout != 10*time.Second || cfg.ReadTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/30s", cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if cfg.SettleDelay != 100*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 100ms", cfg.SettleDelay)
	}
	if cfg.PlaneSource != PlaneSourcePixelBuffer {
		t.Errorf("PlaneSource = %q, want raw pixels by default", cfg.PlaneSource)
	}
	if !cfg.ScanOnStart {
		t.Error("expected scan-on-start by default")
	}
	if cfg.MaxDescriptorSize != 64*1024 {
		t.Errorf("MaxDescriptorSize = %d", cfg.MaxDescriptorSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFrom_EnvAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	yaml := "watch-dir: /data/inbox\nsettle-delay: 250ms\nhost-kind: s3\ns3-bucket: from-file\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OMEROWATCH_S3_BUCKET", "from-env")

	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.WatchDir != "/data/inbox" {
		t.Errorf("WatchDir = %q", cfg.WatchDir)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.S3Bucket != "from-env" {
		t.Errorf("S3Bucket = %q, env should win over file", cfg.S3Bucket)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WatchDir:          "/in",
			SettingsPath:      "/s.yaml",
			HostKind:          HostFile,
			OutputDir:         "/out",
			Scheme:            "https",
			PlaneSource:       PlaneSourceRender,
			ConnectTimeout:    time.Second,
			ReadTimeout:       time.Second,
			MaxDescriptorSize: 1,
			MaxVolumeBytes:    1,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty watch dir", func(c *Config) { c.WatchDir = "" }},
		{"unknown host", func(c *Config) { c.HostKind = "slicer" }},
		{"s3 without bucket", func(c *Config) { c.HostKind = HostS3 }},
		{"file without dir", func(c *Config) { c.OutputDir = "" }},
		{"bad scheme", func(c *Config) { c.Scheme = "ftp" }},
		{"unknown plane source", func(c *Config) { c.PlaneSource = "thumbnail" }},
		{"zero timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"negative settle", func(c *Config) { c.SettleDelay = -time.Second }},
		{"zero volume limit", func(c *Config) { c.MaxVolumeBytes = 0 }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
