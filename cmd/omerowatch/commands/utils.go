package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cecad-imaging/omerowatch/internal/config"
	"github.com/cecad-imaging/omerowatch/pkg/db"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/host"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/security"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
	"github.com/cecad-imaging/omerowatch/pkg/storage"
	"github.com/cecad-imaging/omerowatch/pkg/volume"
	"github.com/cecad-imaging/omerowatch/pkg/watcher"
	"github.com/natefinch/lumberjack"
)

// ensureDirectories creates the parent directory of every non-empty path
func ensureDirectories(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return errors.Wrap(err, "failed to create directory for "+p)
		}
	}
	return nil
}

// setupLogging installs the default slog logger, rotating through
// lumberjack when a log file is configured
func setupLogging(cfg *config.Config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log-level %q", cfg.LogLevel)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		if err := ensureDirectories(cfg.LogFile); err != nil {
			return err
		}
		out = &lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxSize:  cfg.LogMaxSize,
			MaxAge:   cfg.LogMaxAge,
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

func newConnector(cfg *config.Config) *omero.WebConnector {
	return omero.NewWebConnector(omero.WebOptions{
		Scheme:             cfg.Scheme,
		ConnectTimeout:     cfg.ConnectTimeout,
		ReadTimeout:        cfg.ReadTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		PlaneSource:        cfg.PlaneSource,
	})
}

func newStorage(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, storage.Options{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3Endpoint != "",
	})
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client, nil
}

func newHost(ctx context.Context, cfg *config.Config) (host.Host, error) {
	switch cfg.HostKind {
	case config.HostS3:
		client, err := newStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return host.NewS3Host(client, cfg.S3Prefix, cfg.NRRDGzip), nil
	default:
		return host.NewFileHost(cfg.OutputDir, cfg.NRRDGzip)
	}
}

// app bundles everything a fetch needs
type app struct {
	cfg      *config.Config
	repo     *db.Repository
	pipeline *watcher.Pipeline
}

func (a *app) Close() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// newApp wires settings, transport, host and ledger into a pipeline.
// A ledger that cannot be opened is logged and skipped.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.SettingsPath); err != nil {
		return nil, err
	}

	h, err := newHost(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt := &app{cfg: cfg}

	var ledger watcher.Ledger
	if cfg.SQLitePath != "" {
		repo, err := db.NewRepository(cfg.SQLitePath)
		if err != nil {
			slog.Warn("ledger_unavailable", "db_path", cfg.SQLitePath, "error", err)
		} else {
			rt.repo = repo
			ledger = repo
		}
	}

	validator := security.NewValidator(cfg.MaxDescriptorSize, cfg.MaxVolumeBytes)
	rt.pipeline = watcher.NewPipeline(
		settings.NewStore(cfg.SettingsPath),
		omero.NewClient(newConnector(cfg)),
		volume.NewAssembler(h, validator),
		validator,
		ledger,
	)
	return rt, nil
}

func openRepository() (*db.Repository, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath); err != nil {
		return nil, nil, err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "db init failed")
	}
	return repo, cfg, nil
}
