package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/db"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/host"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/cecad-imaging/omerowatch/pkg/security"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
	"github.com/cecad-imaging/omerowatch/pkg/volume"
)

var testClock = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type countingConfig struct {
	mu    sync.Mutex
	loads int
}

func (c *countingConfig) Load() settings.ConnectionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	return settings.ConnectionConfig{Host: "omero.example.org", Port: "443", Username: "user", Password: "secret"}
}

func (c *countingConfig) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// stubConnector serves images from memory and counts what it was asked.
type stubConnector struct {
	mu       sync.Mutex
	images   map[omero.ImageID]*stubImage
	connects int
	fetches  []omero.ImageID
}

func newStubConnector() *stubConnector {
	return &stubConnector{images: map[omero.ImageID]*stubImage{
		"42": {name: "sample.tif", planes: []*omero.Plane{
			flatPlane(4, 4, 1), flatPlane(4, 4, 2), flatPlane(4, 4, 3),
		}},
	}}
}

func (c *stubConnector) Connect(ctx context.Context, cfg settings.ConnectionConfig) (omero.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return &stubSession{connector: c}, nil
}

func (c *stubConnector) stats() (connects int, fetches []omero.ImageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, append([]omero.ImageID(nil), c.fetches...)
}

type stubSession struct {
	connector *stubConnector
}

func (s *stubSession) GetImage(ctx context.Context, id omero.ImageID) (omero.ImageHandle, error) {
	s.connector.mu.Lock()
	defer s.connector.mu.Unlock()
	s.connector.fetches = append(s.connector.fetches, id)
	img, ok := s.connector.images[id]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "image", "image %s not found", id)
	}
	return img, nil
}

func (s *stubSession) Ping(ctx context.Context) error { return nil }

func (s *stubSession) Close() error { return nil }

type stubImage struct {
	name   string
	planes []*omero.Plane
}

func (i *stubImage) Name() string { return i.name }

func (i *stubImage) ChannelCount() int { return len(i.planes) }

func (i *stubImage) Plane(ctx context.Context, channel int) (*omero.Plane, error) {
	return i.planes[channel], nil
}

func flatPlane(w, h int, value uint16) *omero.Plane {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = value
	}
	return &omero.Plane{Width: w, Height: h, Pix: pix}
}

type testEnv struct {
	pipeline  *Pipeline
	host      *host.MemoryHost
	ledger    *db.Repository
	connector *stubConnector
	config    *countingConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ledger, err := db.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	validator := security.NewValidator(64<<10, 1<<30)
	memHost := host.NewMemoryHost()
	assembler := volume.NewAssembler(memHost, validator)
	assembler.SetClock(func() time.Time { return testClock })

	connector := newStubConnector()
	config := &countingConfig{}

	return &testEnv{
		pipeline:  NewPipeline(config, omero.NewClient(connector), assembler, validator, ledger),
		host:      memHost,
		ledger:    ledger,
		connector: connector,
		config:    config,
	}
}

// blockingProcessor holds each Process call until released.
type blockingProcessor struct {
	entered chan string
	release chan struct{}
}

func (b *blockingProcessor) Process(ctx context.Context, path string) Result {
	b.entered <- path
	<-b.release
	return Result{Path: path}
}
