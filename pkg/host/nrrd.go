package host

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// NRRDExtension is appended to volume names when writing files or objects.
const NRRDExtension = ".nrrd"

// WriteNRRD encodes spec as a 4D vector NRRD (channel, x, y, z=1) that
// Slicer loads as a vector volume.
func WriteNRRD(w io.Writer, spec VolumeSpec, compress bool) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	encoding := "raw"
	if compress {
		encoding = "gzip"
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "NRRD0004\n")
	fmt.Fprintf(bw, "# %s\n", spec.Name)
	fmt.Fprintf(bw, "type: unsigned short\n")
	fmt.Fprintf(bw, "dimension: 4\n")
	fmt.Fprintf(bw, "space: left-posterior-superior\n")
	fmt.Fprintf(bw, "sizes: %d %d %d 1\n", spec.Channels, spec.Width, spec.Height)
	fmt.Fprintf(bw, "space directions: none (1,0,0) (0,1,0) (0,0,1)\n")
	fmt.Fprintf(bw, "kinds: vector domain domain domain\n")
	fmt.Fprintf(bw, "endian: little\n")
	fmt.Fprintf(bw, "encoding: %s\n", encoding)
	fmt.Fprintf(bw, "space origin: (0,0,0)\n\n")

	var data io.Writer = bw
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(bw)
		data = gz
	}

	if err := writeVoxels(data, spec.Voxels); err != nil {
		return err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip close: %w", err)
		}
	}
	return bw.Flush()
}

func writeVoxels(w io.Writer, voxels []uint16) error {
	const chunk = 32 * 1024
	buf := make([]byte, 2*chunk)

	for start := 0; start < len(voxels); start += chunk {
		end := min(start+chunk, len(voxels))
		n := 0
		for _, v := range voxels[start:end] {
			binary.LittleEndian.PutUint16(buf[n:], v)
			n += 2
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write voxels: %w", err)
		}
	}
	return nil
}
