// Package host materializes assembled volumes for the visualization side:
// in memory, as NRRD files on disk, or as NRRD objects in S3.
package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// maxNameAttempts bounds how many numbered variants of a taken name a host
// tries before giving up.
const maxNameAttempts = 1000

// VolumeSpec is the voxel data and display name of one volume. Voxels are
// laid out with the channel as the fastest axis:
// Voxels[(y*Width+x)*Channels+c].
type VolumeSpec struct {
	Name     string
	Width    int
	Height   int
	Channels int
	Voxels   []uint16
}

// Validate checks the dimensions agree with the voxel count.
func (s VolumeSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.Channels <= 0 {
		return fmt.Errorf("invalid volume dimensions %dx%dx%d", s.Width, s.Height, s.Channels)
	}
	if want := s.Width * s.Height * s.Channels; len(s.Voxels) != want {
		return fmt.Errorf("volume has %d voxels, dimensions need %d", len(s.Voxels), want)
	}
	if s.Name == "" {
		return fmt.Errorf("volume name is empty")
	}
	return nil
}

// VolumeHandle identifies a created volume
type VolumeHandle interface {
	Name() string
	ID() string
}

// Host creates volume entities. Ownership of spec.Voxels passes to the host.
type Host interface {
	CreateVolume(ctx context.Context, spec VolumeSpec) (VolumeHandle, error)
}

type handle struct {
	name string
	id   string
}

func (h handle) Name() string { return h.name }

func (h handle) ID() string { return h.id }

// NumberedName returns name unchanged for n <= 1. Otherwise "-n" goes before
// the extension (split on the last '.'), so a second "a_20240101_120000.tif"
// becomes "a_20240101_120000-2.tif".
func NumberedName(name string, n int) string {
	if n <= 1 {
		return name
	}
	suffix := "-" + strconv.Itoa(n)
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + suffix + name[i:]
	}
	return name + suffix
}
