package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cecad-imaging/omerowatch/pkg/db"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/security"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
	"github.com/cecad-imaging/omerowatch/pkg/volume"
	"github.com/oklog/ulid/v2"
)

// ConfigSource supplies connection settings. It is read on every fetch.
type ConfigSource interface {
	Load() settings.ConnectionConfig
}

// Ledger records the outcome of each descriptor
type Ledger interface {
	Create(f *db.Fetch) error
	UpdateStatus(id int64, status, imageID string) error
	Complete(id int64, volumeName, volumeID string) error
	Fail(id int64, kind, message string) error
}

// Pipeline runs one fetch cycle: parse, fetch, assemble, hand off, record.
// It does not delete descriptors; the Watcher owns that.
type Pipeline struct {
	config    ConfigSource
	client    *omero.Client
	assembler *volume.Assembler
	validator *security.Validator
	ledger    Ledger
}

// NewPipeline creates a pipeline. ledger may be nil.
func NewPipeline(
	config ConfigSource,
	client *omero.Client,
	assembler *volume.Assembler,
	validator *security.Validator,
	ledger Ledger,
) *Pipeline {
	return &Pipeline{
		config:    config,
		client:    client,
		assembler: assembler,
		validator: validator,
		ledger:    ledger,
	}
}

// Process parses the descriptor at path and fetches the image it names.
func (p *Pipeline) Process(ctx context.Context, path string) Result {
	res := Result{Path: path, RunID: ulid.Make().String()}
	slog.Info("descriptor_process_start", "path", path, "run_id", res.RunID)

	fetchID := p.recordStart(res.RunID, path)

	id, err := p.readDescriptor(path)
	if err != nil {
		res.Err = err
		p.recordEnd(fetchID, &res)
		return res
	}

	res.ImageID = id
	p.fetch(ctx, fetchID, &res)
	return res
}

// FetchByID runs the pipeline for an id that did not come from a file.
// source is recorded in the ledger in place of a descriptor path.
func (p *Pipeline) FetchByID(ctx context.Context, id omero.ImageID, source string) Result {
	res := Result{Path: source, RunID: ulid.Make().String(), ImageID: id}
	slog.Info("fetch_by_id_start", "image_id", id, "run_id", res.RunID)

	fetchID := p.recordStart(res.RunID, source)
	p.fetch(ctx, fetchID, &res)
	return res
}

func (p *Pipeline) readDescriptor(path string) (omero.ImageID, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open descriptor")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "failed to stat descriptor")
	}
	if err := p.validator.ValidateDescriptorSize(info.Size()); err != nil {
		return "", errors.Classify(errors.KindMalformedDescriptor, "too_large", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrap(err, "failed to read descriptor")
	}

	id, err := ParseDescriptor(data)
	if err != nil {
		slog.Error("descriptor_malformed", "path", path, "error", err)
		return "", err
	}

	slog.Info("descriptor_parsed", "path", path, "image_id", id)
	return id, nil
}

func (p *Pipeline) fetch(ctx context.Context, fetchID int64, res *Result) {
	defer p.recordEnd(fetchID, res)

	if p.ledger != nil && fetchID != 0 {
		if err := p.ledger.UpdateStatus(fetchID, db.StatusFetching, res.ImageID.String()); err != nil {
			slog.Warn("ledger_update_failed", "run_id", res.RunID, "error", err)
		}
	}

	img, err := p.fetchRemote(ctx, res.ImageID)
	if err != nil {
		res.Err = err
		return
	}

	buf, err := p.assembler.Assemble(img)
	if err != nil {
		slog.Error("volume_assemble_failed", "image_id", res.ImageID, "error", err)
		res.Err = err
		return
	}

	handle, err := p.assembler.Handoff(ctx, buf, img.Name)
	if err != nil {
		res.Err = err
		return
	}

	res.Volume = handle
	slog.Info("image_loaded_into_volume", "image_id", res.ImageID, "volume", handle.Name(), "volume_id", handle.ID())
}

// fetchRemote connects with freshly loaded settings and always closes the
// session before returning.
func (p *Pipeline) fetchRemote(ctx context.Context, id omero.ImageID) (*omero.RemoteImage, error) {
	session, err := p.client.Connect(ctx, p.config.Load())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.client.Close(session); err != nil {
			slog.Warn("omero_session_close_failed", "image_id", id, "error", err)
		}
	}()

	return p.client.FetchImage(ctx, session, id)
}

func (p *Pipeline) recordStart(runID, path string) int64 {
	if p.ledger == nil {
		return 0
	}
	f := &db.Fetch{RunID: runID, DescriptorPath: path, Status: db.StatusPending}
	if err := p.ledger.Create(f); err != nil {
		slog.Warn("ledger_create_failed", "run_id", runID, "error", err)
		return 0
	}
	return f.ID
}

func (p *Pipeline) recordEnd(fetchID int64, res *Result) {
	if res.Err != nil {
		slog.Error("descriptor_failed",
			"path", res.Path,
			"run_id", res.RunID,
			"image_id", res.ImageID,
			"kind", errors.KindOf(res.Err),
			"error", res.Err)
	}

	if p.ledger == nil || fetchID == 0 {
		return
	}

	var err error
	if res.Err != nil {
		kind := string(errors.KindOf(res.Err))
		if kind == "" {
			kind = "io"
		}
		err = p.ledger.Fail(fetchID, kind, res.Err.Error())
	} else if res.Volume != nil {
		err = p.ledger.Complete(fetchID, res.Volume.Name(), res.Volume.ID())
	}
	if err != nil {
		slog.Warn("ledger_update_failed", "run_id", res.RunID, "error", err)
	}
}
