package omero

import (
	"context"

	"github.com/cecad-imaging/omerowatch/pkg/settings"
)

// Connector opens sessions against an image server
type Connector interface {
	// Connect opens a session with the given credentials
	Connect(ctx context.Context, cfg settings.ConnectionConfig) (Session, error)
}

// Session is an authenticated connection
type Session interface {
	// GetImage resolves an identifier to an image handle
	GetImage(ctx context.Context, id ImageID) (ImageHandle, error)

	// Ping checks the session is still alive
	Ping(ctx context.Context) error

	// Close releases the session. Calling it more than once is safe.
	Close() error
}

// ImageHandle gives access to one remote image
type ImageHandle interface {
	Name() string

	ChannelCount() int

	// Plane retrieves the 2D plane of channel (0-based)
	Plane(ctx context.Context, channel int) (*Plane, error)
}
