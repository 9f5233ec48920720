package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Validator enforces size and naming limits on descriptors and volumes
type Validator struct {
	maxDescriptorSize int64
	maxVolumeBytes    int64
}

// NewValidator creates a new security validator
func NewValidator(maxDescriptorSize, maxVolumeBytes int64) *Validator {
	slog.Info("security_validator_init",
		"max_descriptor_size", humanize.Bytes(uint64(maxDescriptorSize)),
		"max_volume_size", humanize.Bytes(uint64(maxVolumeBytes)))

	return &Validator{
		maxDescriptorSize: maxDescriptorSize,
		maxVolumeBytes:    maxVolumeBytes,
	}
}

// ValidateDescriptorSize rejects descriptor files too large to be a single id
func (v *Validator) ValidateDescriptorSize(size int64) error {
	if size > v.maxDescriptorSize {
		slog.Error("security_descriptor_size_exceeded",
			"size", size,
			"max_size", v.maxDescriptorSize)
		return fmt.Errorf("security: descriptor size %d exceeds max %d", size, v.maxDescriptorSize)
	}
	return nil
}

// ValidateVolumeSize checks the voxel buffer a width x height x channels
// image would need, at bytesPerVoxel bytes each
func (v *Validator) ValidateVolumeSize(width, height, channels, bytesPerVoxel int) error {
	if width <= 0 || height <= 0 || channels <= 0 {
		return fmt.Errorf("security: invalid volume dimensions %dx%dx%d", width, height, channels)
	}

	total := int64(width) * int64(height) * int64(channels) * int64(bytesPerVoxel)
	if total > v.maxVolumeBytes {
		slog.Error("security_volume_size_exceeded",
			"width", width,
			"height", height,
			"channels", channels,
			"size", humanize.Bytes(uint64(total)),
			"max_size", humanize.Bytes(uint64(v.maxVolumeBytes)))
		return fmt.Errorf("security: volume size %d exceeds max %d", total, v.maxVolumeBytes)
	}
	return nil
}

// ValidateVolumeName checks a volume name is safe to use as a file or object
// name. Names come from remote image metadata and are not trusted.
func (v *Validator) ValidateVolumeName(name string) error {
	if strings.TrimSpace(name) == "" {
		slog.Error("security_name_validation_failed", "name", name, "reason", "empty")
		return fmt.Errorf("security: empty volume name")
	}

	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		slog.Error("security_name_validation_failed", "name", name, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", name)
	}

	if strings.ContainsAny(name, `/\`) {
		slog.Error("security_name_validation_failed", "name", name, "reason", "separator")
		return fmt.Errorf("security: path separator not allowed: %s", name)
	}

	if name == "." || name == ".." {
		slog.Error("security_name_validation_failed", "name", name, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", name)
	}

	if strings.ContainsRune(name, 0) {
		slog.Error("security_name_validation_failed", "reason", "nul_byte")
		return fmt.Errorf("security: NUL byte in volume name")
	}

	return nil
}

// SanitizeVolumeName replaces separators and NUL bytes so a remote image
// name can be used as a volume name
func SanitizeVolumeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	switch cleaned {
	case "", ".", "..":
		return "image"
	}
	return cleaned
}
