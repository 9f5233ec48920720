package host

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// FileHost writes each volume as <name>.nrrd under a directory
type FileHost struct {
	dir      string
	compress bool
}

// NewFileHost creates the output directory if needed
func NewFileHost(dir string, compress bool) (*FileHost, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	slog.Info("file_host_init", "dir", dir, "gzip", compress)
	return &FileHost{dir: dir, compress: compress}, nil
}

// FileHandle is the handle of a volume written to disk
type FileHandle struct {
	handle
	Path string
}

func (f *FileHost) CreateVolume(ctx context.Context, spec VolumeSpec) (VolumeHandle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if filepath.Base(spec.Name) != spec.Name {
		return nil, fmt.Errorf("volume name %q is not a plain file name", spec.Name)
	}

	slog.Info("file_volume_write_start", "dir", f.dir, "name", spec.Name)

	// Write to a temp file and link it into place so readers never see a
	// partial volume and an existing volume is never replaced.
	tmp, err := os.CreateTemp(f.dir, ".volume-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := WriteNRRD(tmp, spec, f.compress); err != nil {
		tmp.Close()
		slog.Error("file_volume_encode_failed", "name", spec.Name, "error", err)
		return nil, errors.Wrap(err, "failed to encode volume")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close temp file")
	}

	name, path, err := f.place(tmp.Name(), spec.Name)
	if err != nil {
		return nil, err
	}

	var size uint64
	if info, err := os.Stat(path); err == nil {
		size = uint64(info.Size())
	}

	id := ulid.Make().String()
	slog.Info("file_volume_written", "path", path, "volume_id", id, "size", humanize.Bytes(size))

	return FileHandle{handle: handle{name: name, id: id}, Path: path}, nil
}

// place hard-links src to the first free numbered variant of name. Link
// fails on an existing target, so two writers never claim the same file.
func (f *FileHost) place(src, name string) (string, string, error) {
	for n := 1; n <= maxNameAttempts; n++ {
		candidate := NumberedName(name, n)
		path := filepath.Join(f.dir, candidate+NRRDExtension)

		err := os.Link(src, path)
		if err == nil {
			if n > 1 {
				slog.Info("file_volume_name_taken", "name", name, "used", candidate)
			}
			return candidate, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			slog.Error("file_volume_link_failed", "path", path, "error", err)
			return "", "", errors.Wrap(err, "failed to move volume into place")
		}
	}
	return "", "", fmt.Errorf("no free file name for %q after %d attempts", name, maxNameAttempts)
}
