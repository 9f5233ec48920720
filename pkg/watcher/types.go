package watcher

import (
	"github.com/cecad-imaging/omerowatch/pkg/host"
	"github.com/cecad-imaging/omerowatch/pkg/omero"
)

// State of the watcher
type State string

// State names
const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// Result is the outcome of processing one descriptor
type Result struct {
	Path    string
	RunID   string
	ImageID omero.ImageID

	// From a successful handoff
	Volume host.VolumeHandle

	// Set on failure; the descriptor is removed either way
	Err error
}

// Summary covers one processing cycle
type Summary struct {
	Processed int
	Failed    int
	Results   []Result
}
