// Package volume stacks per-channel planes into one volumetric buffer and
// hands it to a host.
package volume

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/host"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/security"
	"github.com/dustin/go-humanize"
)

// TimestampLayout is the suffix format inserted into volume names.
const TimestampLayout = "20060102_150405"

// Buffer is a width x height x channels voxel array with the channel as the
// trailing (fastest) axis.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Voxels   []uint16
}

// At returns the voxel at column x, row y, channel c.
func (b *Buffer) At(x, y, c int) uint16 {
	return b.Voxels[(y*b.Width+x)*b.Channels+c]
}

// Shape returns width, height, channels.
func (b *Buffer) Shape() [3]int {
	return [3]int{b.Width, b.Height, b.Channels}
}

// SizeBytes is the memory held by the voxels.
func (b *Buffer) SizeBytes() int64 {
	return int64(len(b.Voxels)) * 2
}

// Assemble stacks img's planes along a new trailing axis in channel order.
// Planes must all share one width and height.
func Assemble(img *omero.RemoteImage) (*Buffer, error) {
	if img == nil || len(img.Planes) == 0 {
		return nil, errors.New(errors.KindShapeMismatch, "no_planes", "image has no planes")
	}

	first := img.Planes[0]
	if first == nil {
		return nil, errors.New(errors.KindShapeMismatch, "nil_plane", "channel 0 is missing")
	}
	width, height := first.Width, first.Height
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.KindShapeMismatch, "empty_plane", "channel 0 is %dx%d", width, height)
	}

	for c, p := range img.Planes {
		if p == nil {
			return nil, errors.New(errors.KindShapeMismatch, "nil_plane", "channel %d is missing", c)
		}
		if p.Width != width || p.Height != height {
			return nil, errors.New(errors.KindShapeMismatch, "dimensions",
				"channel %d is %dx%d, channel 0 is %dx%d", c, p.Width, p.Height, width, height)
		}
		if len(p.Pix) != width*height {
			return nil, errors.New(errors.KindShapeMismatch, "pixel_count",
				"channel %d has %d pixels, %dx%d needs %d", c, len(p.Pix), width, height, width*height)
		}
	}

	channels := len(img.Planes)
	voxels := make([]uint16, width*height*channels)
	for c, p := range img.Planes {
		for i, v := range p.Pix {
			voxels[i*channels+c] = v
		}
	}

	return &Buffer{Width: width, Height: height, Channels: channels, Voxels: voxels}, nil
}

// TimestampedName inserts _<YYYYMMDD_HHMMSS> before the extension, splitting
// on the last '.'. A name without '.' gets the suffix appended.
func TimestampedName(name string, t time.Time) string {
	stamp := t.Format(TimestampLayout)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i] + "_" + stamp + name[i:]
	}
	return name + "_" + stamp
}

// Handoff asks h to create a volume from buf named after name with a
// timestamp suffix. The assembler keeps no reference to buf afterwards.
func Handoff(ctx context.Context, buf *Buffer, name string, h host.Host, now time.Time) (host.VolumeHandle, error) {
	spec := host.VolumeSpec{
		Name:     TimestampedName(name, now),
		Width:    buf.Width,
		Height:   buf.Height,
		Channels: buf.Channels,
		Voxels:   buf.Voxels,
	}

	slog.Info("volume_handoff_start", "name", spec.Name,
		"width", spec.Width, "height", spec.Height, "channels", spec.Channels,
		"size", humanize.Bytes(uint64(buf.SizeBytes())))

	handle, err := h.CreateVolume(ctx, spec)
	if err != nil {
		slog.Error("volume_handoff_failed", "name", spec.Name, "error", err)
		return nil, errors.Wrap(err, "host rejected volume")
	}

	slog.Info("volume_handoff_complete", "name", handle.Name(), "volume_id", handle.ID())
	return handle, nil
}

// Assembler combines Assemble and Handoff with size and name limits and
// an injectable clock.
type Assembler struct {
	host      host.Host
	validator *security.Validator
	now       func() time.Time
}

// NewAssembler creates an assembler handing volumes to h
func NewAssembler(h host.Host, validator *security.Validator) *Assembler {
	return &Assembler{host: h, validator: validator, now: time.Now}
}

// SetClock replaces the clock used for volume names.
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

// Assemble checks the volume fits the size limit before stacking.
func (a *Assembler) Assemble(img *omero.RemoteImage) (*Buffer, error) {
	if img != nil && len(img.Planes) > 0 && img.Planes[0] != nil {
		p := img.Planes[0]
		if err := a.validator.ValidateVolumeSize(p.Width, p.Height, len(img.Planes), 2); err != nil {
			return nil, err
		}
	}
	return Assemble(img)
}

// Handoff sanitizes the remote name, validates the final name and creates
// the volume.
func (a *Assembler) Handoff(ctx context.Context, buf *Buffer, name string) (host.VolumeHandle, error) {
	now := a.now()
	safe := security.SanitizeVolumeName(name)
	if err := a.validator.ValidateVolumeName(TimestampedName(safe, now)); err != nil {
		return nil, err
	}
	return Handoff(ctx, buf, safe, a.host, now)
}
