package watcher

import (
	"testing"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name string
		data string
		want omero.ImageID
	}{
		{"integer", `{"id_image": 42}`, "42"},
		{"string", `{"id_image": "abc-7"}`, "abc-7"},
		{"extra keys", `{"id_image": 5, "note": "ignored", "n": [1, 2]}`, "5"},
		{"whitespace", "\n  {\"id_image\":\t9}\n", "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDescriptor([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDescriptor_Malformed(t *testing.T) {
	tests := map[string]string{
		"truncated":   `{"id_image": 4`,
		"empty":       ``,
		"missing key": `{"image": 42}`,
		"null id":     `{"id_image": null}`,
		"array":       `[42]`,
		"fraction":    `{"id_image": 4.5}`,
		"empty id":    `{"id_image": ""}`,
		"object id":   `{"id_image": {"id": 1}}`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedDescriptor), "got %v", err)
		})
	}
}

func TestIsDescriptorName(t *testing.T) {
	tests := map[string]bool{
		"42.json":        true,
		"UPPER.JSON":     true,
		"a.b.json":       true,
		".json":          true,
		"notes.txt":      false,
		"json":           false,
		"noext":          false,
		"42.json.tmp":    false,
		"archive.jsonld": false,
	}

	for name, want := range tests {
		assert.Equal(t, want, IsDescriptorName(name), name)
	}
}
