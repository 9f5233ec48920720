package omero

import (
	"context"
	"fmt"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
)

// fakeConnector returns canned images without any network.
type fakeConnector struct {
	images     map[ImageID]*fakeImage
	connectErr error
	pingErr    error
	pingPanic  bool

	connects int
	sessions []*fakeSession
}

func (f *fakeConnector) Connect(ctx context.Context, cfg settings.ConnectionConfig) (Session, error) {
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	s := &fakeSession{connector: f}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeConnector) openSessions() int {
	n := 0
	for _, s := range f.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

type fakeSession struct {
	connector *fakeConnector
	closed    bool
	closes    int
}

func (s *fakeSession) GetImage(ctx context.Context, id ImageID) (ImageHandle, error) {
	img, ok := s.connector.images[id]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "image", "image %s not found", id)
	}
	return img, nil
}

func (s *fakeSession) Ping(ctx context.Context) error {
	if s.connector.pingPanic {
		panic("transport exploded")
	}
	return s.connector.pingErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.closes++
	return nil
}

type fakeImage struct {
	name      string
	planes    []*Plane
	failAt    int
	planeHits int
}

func (i *fakeImage) Name() string { return i.name }

func (i *fakeImage) ChannelCount() int { return len(i.planes) }

func (i *fakeImage) Plane(ctx context.Context, channel int) (*Plane, error) {
	i.planeHits++
	if i.failAt >= 0 && channel == i.failAt {
		return nil, fmt.Errorf("connection reset")
	}
	return i.planes[channel], nil
}

func uniformPlane(w, h int, value uint16) *Plane {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = value
	}
	return &Plane{Width: w, Height: h, Pix: pix}
}
