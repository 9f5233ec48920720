package volume

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/host"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/security"
)

func plane(w, h int, base uint16) *omero.Plane {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = base + uint16(i)
	}
	return &omero.Plane{Width: w, Height: h, Pix: pix}
}

func TestAssemble_StacksChannelsLast(t *testing.T) {
	img := &omero.RemoteImage{
		Name:   "sample.tif",
		Planes: []*omero.Plane{plane(4, 4, 0), plane(4, 4, 100), plane(4, 4, 200)},
	}

	buf, err := Assemble(img)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	if buf.Shape() != [3]int{4, 4, 3} {
		t.Fatalf("shape = %v, want [4 4 3]", buf.Shape())
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			for c := 0; c < 3; c++ {
				want := img.Planes[c].At(x, y)
				if got := buf.At(x, y, c); got != want {
					t.Fatalf("voxel (%d,%d,%d) = %d, want %d", x, y, c, got, want)
				}
			}
		}
	}
}

func TestAssemble_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		img  *omero.RemoteImage
	}{
		{"4x4 and 4x5", &omero.RemoteImage{Planes: []*omero.Plane{plane(4, 4, 0), plane(4, 5, 0)}}},
		{"no planes", &omero.RemoteImage{}},
		{"nil image", nil},
		{"short pixel slice", &omero.RemoteImage{Planes: []*omero.Plane{{Width: 4, Height: 4, Pix: make([]uint16, 3)}}}},
		{"nil plane", &omero.RemoteImage{Planes: []*omero.Plane{plane(2, 2, 0), nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Assemble(tt.img)
			if buf != nil {
				t.Error("expected no buffer")
			}
			if !errors.Is(err, errors.ErrShapeMismatch) {
				t.Errorf("expected shape mismatch, got %v", err)
			}
		})
	}
}

func TestTimestampedName(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	tests := map[string]string{
		"sample.tif":       "sample_20240309_070501.tif",
		"archive.ome.tiff": "archive.ome_20240309_070501.tiff",
		"noext":            "noext_20240309_070501",
		"a.b":              "a_20240309_070501.b",
		"ab":               "ab_20240309_070501",
		".tif":             "_20240309_070501.tif",
	}

	for in, want := range tests {
		if got := TimestampedName(in, at); got != want {
			t.Errorf("TimestampedName(%q) = %q, want %q", in, got, want)
		}
	}
}

var sampleName = regexp.MustCompile(`^sample_\d{8}_\d{6}\.tif$`)

func TestAssembler_Handoff(t *testing.T) {
	h := host.NewMemoryHost()
	a := NewAssembler(h, security.NewValidator(1024, 1<<20))

	img := &omero.RemoteImage{
		Name:   "sample.tif",
		Planes: []*omero.Plane{plane(4, 4, 0), plane(4, 4, 0), plane(4, 4, 0)},
	}
	buf, err := a.Assemble(img)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	handle, err := a.Handoff(context.Background(), buf, img.Name)
	if err != nil {
		t.Fatalf("handoff failed: %v", err)
	}

	if !sampleName.MatchString(handle.Name()) {
		t.Errorf("volume name %q does not match %s", handle.Name(), sampleName)
	}

	spec, ok := h.Get(handle.ID())
	if !ok {
		t.Fatal("host has no volume for handle id")
	}
	if spec.Width != 4 || spec.Height != 4 || spec.Channels != 3 {
		t.Errorf("host volume is %dx%dx%d", spec.Width, spec.Height, spec.Channels)
	}
}

func TestAssembler_FixedClock(t *testing.T) {
	h := host.NewMemoryHost()
	a := NewAssembler(h, security.NewValidator(1024, 1<<20))
	a.SetClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) })

	buf, _ := Assemble(&omero.RemoteImage{Planes: []*omero.Plane{plane(1, 1, 0)}})
	handle, err := a.Handoff(context.Background(), buf, "dir/evil.tif")
	if err != nil {
		t.Fatalf("handoff failed: %v", err)
	}
	if handle.Name() != "dir_evil_20250102_030405.tif" {
		t.Errorf("name = %q", handle.Name())
	}
}

func TestAssembler_VolumeTooLarge(t *testing.T) {
	a := NewAssembler(host.NewMemoryHost(), security.NewValidator(1024, 10))

	_, err := a.Assemble(&omero.RemoteImage{Planes: []*omero.Plane{plane(4, 4, 0)}})
	if err == nil {
		t.Error("expected size limit error")
	}
}

type failingHost struct{}

func (failingHost) CreateVolume(ctx context.Context, spec host.VolumeSpec) (host.VolumeHandle, error) {
	return nil, fmt.Errorf("scene closed")
}

func TestHandoff_HostError(t *testing.T) {
	buf, _ := Assemble(&omero.RemoteImage{Planes: []*omero.Plane{plane(1, 1, 0)}})
	if _, err := Handoff(context.Background(), buf, "x.tif", failingHost{}, time.Now()); err == nil {
		t.Error("expected host error to propagate")
	}
}
