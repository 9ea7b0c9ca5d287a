package storage

import (
	"database/sql"
	"fmt"
)

// Upload statuses. Transitions run strictly forward through the lifecycle
// controller; restore is the only backward edge.
const (
	UploadStatusActive   = "active"
	UploadStatusArchived = "archived"
	UploadStatusDeleted  = "deleted"
)

// Upload types
const (
	UploadTypeForum         = "forum_data"
	UploadTypeTranscription = "transcription_data"
)

// Upload represents one ingested file and its lifecycle state
type Upload struct {
	ID              int64
	Filename        string
	Label           string
	Comment         *string
	UploadedBy      int64
	UploadDate      string
	RecordsCount    int64
	Status          string
	StatusChangedAt *string
	UploadType      string
}

// UploadFilter narrows List results. Zero values mean no constraint.
type UploadFilter struct {
	UserID     int64
	Status     string
	UploadType string
}

// UserUploadStats summarizes one user's uploads per status
type UserUploadStats struct {
	UserID        int64
	ActiveCount   int64
	ArchivedCount int64
	DeletedCount  int64
	TotalRecords  int64
}

// UploadRepository provides operations over the uploads table
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// CreateTx inserts an upload record inside an existing transaction and
// returns its id. New uploads start active with a zero record count.
func (r *UploadRepository) CreateTx(tx *sql.Tx, upload *Upload) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO uploads (filename, user_readable_name, comment, uploaded_by, upload_type, status, status_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`,
		upload.Filename,
		upload.Label,
		upload.Comment,
		upload.UploadedBy,
		upload.UploadType,
		UploadStatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload: %w", err)
	}

	uploadID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get upload id: %w", err)
	}
	return uploadID, nil
}

// SetRecordsCountTx sets the final record count. Ingestion calls this last
// in the commit transaction so the count never reflects a partial batch.
func (r *UploadRepository) SetRecordsCountTx(tx *sql.Tx, uploadID, count int64) error {
	_, err := tx.Exec("UPDATE uploads SET records_count = ? WHERE id = ?", count, uploadID)
	if err != nil {
		return fmt.Errorf("failed to set records count: %w", err)
	}
	return nil
}

// GetByID retrieves an upload by id. Returns nil, nil when not found.
func (r *UploadRepository) GetByID(uploadID int64) (*Upload, error) {
	var u Upload
	err := r.db.QueryRow(`
		SELECT id, filename, user_readable_name, comment, uploaded_by,
		       upload_date, records_count, status, status_changed_at, upload_type
		FROM uploads
		WHERE id = ?
	`, uploadID).Scan(
		&u.ID,
		&u.Filename,
		&u.Label,
		&u.Comment,
		&u.UploadedBy,
		&u.UploadDate,
		&u.RecordsCount,
		&u.Status,
		&u.StatusChangedAt,
		&u.UploadType,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &u, nil
}

// List returns uploads matching the filter, newest first
func (r *UploadRepository) List(filter UploadFilter) ([]Upload, error) {
	query := `
		SELECT id, filename, user_readable_name, comment, uploaded_by,
		       upload_date, records_count, status, status_changed_at, upload_type
		FROM uploads
		WHERE 1=1
	`
	var args []interface{}
	if filter.UserID != 0 {
		query += " AND uploaded_by = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.UploadType != "" {
		query += " AND upload_type = ?"
		args = append(args, filter.UploadType)
	}
	query += " ORDER BY upload_date DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(
			&u.ID,
			&u.Filename,
			&u.Label,
			&u.Comment,
			&u.UploadedBy,
			&u.UploadDate,
			&u.RecordsCount,
			&u.Status,
			&u.StatusChangedAt,
			&u.UploadType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// UpdateStatus moves an upload to a new status, stamping status_changed_at.
// The caller is responsible for validating the transition.
func (r *UploadRepository) UpdateStatus(uploadID int64, status string) error {
	result, err := r.db.Exec(`
		UPDATE uploads SET status = ?, status_changed_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, uploadID)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("upload %d not found", uploadID)
	}
	return nil
}

// Purge permanently removes an upload and all dependent rows. Posts,
// annotations, feedback, and transcriptions go with it via FK cascades.
func (r *UploadRepository) Purge(uploadID int64) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		result, err := tx.Exec("DELETE FROM uploads WHERE id = ?", uploadID)
		if err != nil {
			return fmt.Errorf("failed to purge upload: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("upload %d not found", uploadID)
		}
		return nil
	})
}

// StatsForUser summarizes a user's uploads by status
func (r *UploadRepository) StatsForUser(userID int64) (*UserUploadStats, error) {
	stats := &UserUploadStats{UserID: userID}
	err := r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'archived' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'deleted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(records_count), 0)
		FROM uploads
		WHERE uploaded_by = ?
	`, userID).Scan(
		&stats.ActiveCount,
		&stats.ArchivedCount,
		&stats.DeletedCount,
		&stats.TotalRecords,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload stats: %w", err)
	}
	return stats, nil
}
