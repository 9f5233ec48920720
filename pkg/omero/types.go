package omero

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ImageID is a remote image identifier. Descriptors may carry it as a JSON
// integer or a JSON string; both are kept in their textual form.
type ImageID string

// UnmarshalJSON accepts an integer or a non-empty string.
func (id *ImageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("image id: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("image id is an empty string")
		}
		*id = ImageID(s)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("image id %s is neither an integer nor a string", data)
	}
	*id = ImageID(strconv.FormatInt(n, 10))
	return nil
}

func (id ImageID) String() string {
	return string(id)
}

// Plane is one 2D channel slice, row-major.
type Plane struct {
	Width  int
	Height int
	Pix    []uint16
}

// At returns the value at column x, row y.
func (p *Plane) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

// RemoteImage is a fully fetched image: every channel plane, in channel order.
type RemoteImage struct {
	ID     ImageID
	Name   string
	Planes []*Plane
}

// ChannelCount returns the number of planes.
func (img *RemoteImage) ChannelCount() int {
	return len(img.Planes)
}
