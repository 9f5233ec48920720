// Package omero fetches multi-channel images from an OMERO server.
// Client holds the fetch rules; a Connector supplies the transport.
package omero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
)

// Connection failure reasons.
const (
	ReasonInvalidConfig = "invalid_config"
	ReasonUnreachable   = "unreachable"
	ReasonAuthRejected  = "auth_rejected"
	ReasonProtocol      = "protocol"
	ReasonNotAlive      = "not_alive"
)

// Client fetches images through a Connector
type Client struct {
	connector Connector
}

// NewClient creates a client on top of connector
func NewClient(connector Connector) *Client {
	return &Client{connector: connector}
}

// Connect validates cfg and opens a session. Every failure is a
// connection error.
func (c *Client) Connect(ctx context.Context, cfg settings.ConnectionConfig) (Session, error) {
	if err := cfg.Validate(); err != nil {
		slog.Error("omero_config_invalid", "connection", cfg.String(), "error", err)
		return nil, errors.Classify(errors.KindConnection, ReasonInvalidConfig, err)
	}

	slog.Info("omero_connect_start", "connection", cfg.String())

	session, err := c.connector.Connect(ctx, cfg)
	if err != nil {
		slog.Error("omero_connect_failed", "connection", cfg.String(), "error", err)
		if errors.KindOf(err) == errors.KindConnection {
			return nil, err
		}
		return nil, errors.Classify(errors.KindConnection, ReasonUnreachable, err)
	}

	slog.Info("omero_connected", "connection", cfg.String())
	return session, nil
}

// TestConnection connects, checks the session is alive and disconnects.
// The session is closed on every path, including a panic in the transport.
func (c *Client) TestConnection(ctx context.Context, cfg settings.ConnectionConfig) (ok bool, err error) {
	session, err := c.Connect(ctx, cfg)
	if err != nil {
		return false, err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("omero_test_connection_panic", "panic", r)
			ok = false
			err = errors.New(errors.KindConnection, ReasonProtocol, "transport panic: %v", r)
		}
		if cerr := c.Close(session); cerr != nil {
			slog.Warn("omero_session_close_failed", "error", cerr)
		}
	}()

	if err := session.Ping(ctx); err != nil {
		slog.Error("omero_ping_failed", "connection", cfg.String(), "error", err)
		return false, errors.Classify(errors.KindConnection, ReasonNotAlive, err)
	}

	slog.Info("omero_test_connection_ok", "connection", cfg.String())
	return true, nil
}

// FetchImage resolves id and retrieves every channel plane in order. If any
// plane fails the whole fetch fails; no partial image is returned.
func (c *Client) FetchImage(ctx context.Context, session Session, id ImageID) (*RemoteImage, error) {
	slog.Info("omero_fetch_start", "image_id", id)

	handle, err := session.GetImage(ctx, id)
	if err != nil {
		slog.Error("omero_get_image_failed", "image_id", id, "error", err)
		if errors.Is(err, errors.ErrNotFound) || errors.KindOf(err) == errors.KindFetch {
			return nil, err
		}
		return nil, errors.Classify(errors.KindFetch, "metadata", err)
	}

	count := handle.ChannelCount()
	if count < 1 {
		slog.Error("omero_image_has_no_channels", "image_id", id, "channel_count", count)
		return nil, errors.New(errors.KindFetch, "no_channels", "image %s reports %d channels", id, count)
	}

	slog.Info("omero_image_resolved", "image_id", id, "name", handle.Name(), "channel_count", count)

	planes := make([]*Plane, 0, count)
	for ch := 0; ch < count; ch++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Classify(errors.KindFetch, "cancelled", err)
		}

		plane, err := handle.Plane(ctx, ch)
		if err != nil {
			slog.Error("omero_plane_failed", "image_id", id, "channel", ch, "error", err)
			return nil, errors.Classify(errors.KindFetch, "plane", fmt.Errorf("channel %d of %d: %w", ch, count, err))
		}
		if plane == nil {
			return nil, errors.New(errors.KindFetch, "plane", "channel %d of %d: empty plane", ch, count)
		}

		slog.Debug("omero_plane_fetched", "image_id", id, "channel", ch, "width", plane.Width, "height", plane.Height)
		planes = append(planes, plane)
	}

	slog.Info("omero_fetch_complete", "image_id", id, "name", handle.Name(), "channel_count", count)

	return &RemoteImage{
		ID:     id,
		Name:   handle.Name(),
		Planes: planes,
	}, nil
}

// Close releases session. A nil session is a no-op.
func (c *Client) Close(session Session) error {
	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return errors.Wrap(err, "failed to close session")
	}
	return nil
}
