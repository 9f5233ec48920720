package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// MemoryHost keeps created volumes in memory. It adopts the voxel slice
// without copying.
type MemoryHost struct {
	mu      sync.Mutex
	volumes map[string]VolumeSpec
	order   []string
	names   map[string]bool
}

// NewMemoryHost creates an empty in-memory host
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{volumes: make(map[string]VolumeSpec), names: make(map[string]bool)}
}

func (m *MemoryHost) CreateVolume(ctx context.Context, spec VolumeSpec) (VolumeHandle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	id := ulid.Make().String()

	m.mu.Lock()
	name := spec.Name
	for n := 2; m.names[name]; n++ {
		name = NumberedName(spec.Name, n)
	}
	spec.Name = name
	m.names[name] = true
	m.volumes[id] = spec
	m.order = append(m.order, id)
	m.mu.Unlock()

	slog.Info("memory_volume_created", "volume_id", id, "name", spec.Name,
		"width", spec.Width, "height", spec.Height, "channels", spec.Channels)

	return handle{name: spec.Name, id: id}, nil
}

// Get returns the volume created with id.
func (m *MemoryHost) Get(id string) (VolumeSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.volumes[id]
	return spec, ok
}

// Volumes returns all volumes in creation order.
func (m *MemoryHost) Volumes() []VolumeSpec {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]VolumeSpec, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.volumes[id])
	}
	return out
}
