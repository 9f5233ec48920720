package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the fetch ledger
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

const fetchColumns = `id, run_id, descriptor_path, image_id, status,
       volume_name, volume_id, error_kind, error_message, created_at, updated_at`

// Create inserts a new fetch record
func (r *Repository) Create(f *Fetch) error {
	slog.Info("database_create_fetch", "run_id", f.RunID, "descriptor_path", f.DescriptorPath, "status", f.Status)

	query := `
		INSERT INTO fetches (run_id, descriptor_path, image_id, status, volume_name, volume_id, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		f.RunID, f.DescriptorPath, f.ImageID, f.Status,
		f.VolumeName, f.VolumeID, f.ErrorKind, f.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "run_id", f.RunID, "error", err)
		return errors.Wrap(err, "failed to insert fetch")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "run_id", f.RunID, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	f.ID = id

	slog.Info("database_fetch_created", "run_id", f.RunID, "fetch_id", f.ID, "status", f.Status)
	return nil
}

// GetByRunID retrieves a fetch by run id. It returns nil, nil if none exists.
func (r *Repository) GetByRunID(runID string) (*Fetch, error) {
	query := `SELECT ` + fetchColumns + ` FROM fetches WHERE run_id = ?`

	f, err := scanFetch(r.db.QueryRow(query, runID))
	if err == sql.ErrNoRows {
		slog.Info("database_fetch_not_found", "run_id", runID)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", runID, "error", err)
		return nil, errors.Wrap(err, "failed to query fetch")
	}
	return f, nil
}

// UpdateStatus moves a fetch to status and records the image id once known
func (r *Repository) UpdateStatus(id int64, status, imageID string) error {
	slog.Info("database_update_status", "fetch_id", id, "status", status)

	query := `UPDATE fetches SET status = ?, image_id = COALESCE(NULLIF(?, ''), image_id), updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, imageID, id); err != nil {
		slog.Error("database_status_update_failed", "fetch_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// Complete marks a fetch ready with the host volume it produced
func (r *Repository) Complete(id int64, volumeName, volumeID string) error {
	query := `
		UPDATE fetches
		SET status = ?, volume_name = ?, volume_id = ?, error_kind = '', error_message = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query, StatusReady, volumeName, volumeID, id)
	if err != nil {
		slog.Error("database_complete_failed", "fetch_id", id, "error", err)
		return errors.Wrap(err, "failed to complete fetch")
	}
	return checkAffected(result, id)
}

// Fail marks a fetch failed with the error kind and message
func (r *Repository) Fail(id int64, kind, message string) error {
	query := `
		UPDATE fetches
		SET status = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query, StatusFailed, kind, message, id)
	if err != nil {
		slog.Error("database_fail_failed", "fetch_id", id, "error", err)
		return errors.Wrap(err, "failed to record failure")
	}
	return checkAffected(result, id)
}

func checkAffected(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "fetch_id", id, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_fetch_not_found_for_update", "fetch_id", id)
		return fmt.Errorf("fetch not found: id=%d", id)
	}
	return nil
}

// List retrieves fetches, newest first. An empty status lists all.
func (r *Repository) List(status string) ([]*Fetch, error) {
	slog.Info("database_list_fetches", "status", status)

	query := `SELECT ` + fetchColumns + ` FROM fetches`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list fetches")
	}
	defer rows.Close()

	var fetches []*Fetch
	for rows.Next() {
		f, err := scanFetch(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		fetches = append(fetches, f)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "fetch_count", len(fetches))
	return fetches, nil
}

// DeleteByStatus removes every fetch with status and returns how many
func (r *Repository) DeleteByStatus(status string) (int64, error) {
	slog.Info("database_delete_by_status", "status", status)

	result, err := r.db.Exec(`DELETE FROM fetches WHERE status = ?`, status)
	if err != nil {
		slog.Error("database_delete_failed", "status", status, "error", err)
		return 0, errors.Wrap(err, "failed to delete fetches")
	}
	return result.RowsAffected()
}

// DeleteOlderThan removes fetches created before cutoff
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	slog.Info("database_delete_older_than", "cutoff", cutoff.UTC().Format(time.DateTime))

	result, err := r.db.Exec(`DELETE FROM fetches WHERE created_at < ?`, cutoff.UTC().Format(time.DateTime))
	if err != nil {
		slog.Error("database_delete_failed", "cutoff", cutoff, "error", err)
		return 0, errors.Wrap(err, "failed to delete fetches")
	}
	return result.RowsAffected()
}

// DeleteAll empties the ledger
func (r *Repository) DeleteAll() (int64, error) {
	slog.Info("database_delete_all")

	result, err := r.db.Exec(`DELETE FROM fetches`)
	if err != nil {
		slog.Error("database_delete_failed", "error", err)
		return 0, errors.Wrap(err, "failed to delete fetches")
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFetch(row rowScanner) (*Fetch, error) {
	var f Fetch
	var imageID, volumeName, volumeID, errorKind, errorMessage sql.NullString

	err := row.Scan(
		&f.ID, &f.RunID, &f.DescriptorPath, &imageID, &f.Status,
		&volumeName, &volumeID, &errorKind, &errorMessage,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	f.ImageID = imageID.String
	f.VolumeName = volumeName.String
	f.VolumeID = volumeID.String
	f.ErrorKind = errorKind.String
	f.ErrorMessage = errorMessage.String

	return &f, nil
}
