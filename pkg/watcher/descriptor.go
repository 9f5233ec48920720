package watcher

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
)

// DescriptorKey is the JSON key naming the image to fetch.
const DescriptorKey = "id_image"

type descriptorFile struct {
	ImageID *omero.ImageID `json:"id_image"`
}

// ParseDescriptor extracts the image id from a descriptor. Extra keys are
// ignored. Invalid JSON or a missing, null or unusable id is a malformed
// descriptor error.
func ParseDescriptor(data []byte) (omero.ImageID, error) {
	var f descriptorFile
	if err := sonic.Unmarshal(data, &f); err != nil {
		return "", errors.Classify(errors.KindMalformedDescriptor, "invalid_json", err)
	}
	if f.ImageID == nil {
		return "", errors.New(errors.KindMalformedDescriptor, "missing_key", "descriptor has no %q", DescriptorKey)
	}
	return *f.ImageID, nil
}

// IsDescriptorName reports whether name has the extension json
// (case-insensitive). Names without any '.' are never descriptors.
func IsDescriptorName(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return strings.EqualFold(name[i+1:], "json")
}
