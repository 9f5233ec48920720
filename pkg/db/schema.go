package db

// Schema defines the SQLite schema for the fetch ledger.
// Every processed descriptor gets one row; failed rows double as the
// dead-letter log of identifiers that could not be fetched.
const Schema = `
CREATE TABLE IF NOT EXISTS fetches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    descriptor_path TEXT NOT NULL,
    image_id TEXT,
    status TEXT NOT NULL CHECK(status IN ('pending', 'fetching', 'ready', 'failed')),
    volume_name TEXT,
    volume_id TEXT,
    error_kind TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fetches_image_id ON fetches(image_id);
CREATE INDEX IF NOT EXISTS idx_fetches_status ON fetches(status);
CREATE INDEX IF NOT EXISTS idx_fetches_created_at ON fetches(created_at);
`

// Status constants
const (
	StatusPending  = "pending"
	StatusFetching = "fetching"
	StatusReady    = "ready"
	StatusFailed   = "failed"
)

// Fetch represents one processed descriptor
type Fetch struct {
	ID             int64
	RunID          string
	DescriptorPath string
	ImageID        string
	Status         string
	VolumeName     string
	VolumeID       string
	ErrorKind      string
	ErrorMessage   string
	CreatedAt      string
	UpdatedAt      string
}
