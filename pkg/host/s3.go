package host

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/storage"
)

// ObjectStore is the subset of storage.Client that S3Host needs. Upload
// must return storage.ErrObjectExists rather than replace an object.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) (*storage.UploadResult, error)
}

// S3Host uploads each volume as an NRRD object. The handle id is the
// object key.
type S3Host struct {
	store    ObjectStore
	prefix   string
	compress bool
}

// NewS3Host creates a host writing under prefix in store
func NewS3Host(store ObjectStore, prefix string, compress bool) *S3Host {
	return &S3Host{store: store, prefix: prefix, compress: compress}
}

// Key returns the object key used for a volume name.
func (h *S3Host) Key(name string) string {
	if h.prefix == "" {
		return name + NRRDExtension
	}
	return path.Join(h.prefix, name+NRRDExtension)
}

// CreateVolume uploads under the first free numbered variant of the name.
func (h *S3Host) CreateVolume(ctx context.Context, spec VolumeSpec) (VolumeHandle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteNRRD(&buf, spec, h.compress); err != nil {
		return nil, errors.Wrap(err, "failed to encode volume")
	}

	for n := 1; n <= maxNameAttempts; n++ {
		name := NumberedName(spec.Name, n)
		key := h.Key(name)

		exists, err := h.store.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			slog.Info("s3_volume_name_taken", "s3_key", key)
			continue
		}

		result, err := h.store.Upload(ctx, key, buf.Bytes(), "application/octet-stream")
		if errors.Is(err, storage.ErrObjectExists) {
			slog.Info("s3_volume_name_taken", "s3_key", key)
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("s3_volume_created", "s3_key", result.Key, "name", name)
		return handle{name: name, id: result.Key}, nil
	}

	return nil, fmt.Errorf("no free object key for %q after %d attempts", spec.Name, maxNameAttempts)
}
