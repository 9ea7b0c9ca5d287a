package storage

import (
	"database/sql"
	"fmt"
)

// Transcription represents one experimental-session record. The nine boolean
// observations are stored as 0/1 integers; the four ordinal fields hold
// Likert values 1 through 5.
type Transcription struct {
	ID                int64
	UploadID          int64
	SessionID         string
	ParticipantID     string
	SessionDate       *string
	SessionDuration   *int64
	TranscriptionText *string

	// Boolean observations
	ZoomEase            bool
	ResourceAccess      bool
	InfoMissing         bool
	InfoTakeawayDesired bool
	ExerciseEngaged     bool
	LifestyleChange     bool
	PostopAdherence     bool
	FamilyInvolved      bool
	SupportNeeded       bool

	// Likert ordinals, 1..5
	PollUsability       int64
	PresessionAnxiety   int64
	ReassuranceProvided int64
	InfoUseful          int64
}

// TranscriptionRepository provides operations over the transcriptions table
type TranscriptionRepository struct {
	db *DB
}

// NewTranscriptionRepository creates a new transcription repository
func NewTranscriptionRepository(db *DB) *TranscriptionRepository {
	return &TranscriptionRepository{db: db}
}

// CreateTx inserts a transcription inside an existing transaction
func (r *TranscriptionRepository) CreateTx(tx *sql.Tx, t *Transcription) error {
	_, err := tx.Exec(`
		INSERT INTO transcriptions (
			upload_id, session_id, participant_id, session_date, session_duration,
			transcription_text,
			zoom_ease, poll_usability, resource_access, presession_anxiety,
			reassurance_provided, info_useful, info_missing, info_takeaway_desired,
			exercise_engaged, lifestyle_change, postop_adherence, family_involved,
			support_needed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.UploadID,
		t.SessionID,
		t.ParticipantID,
		t.SessionDate,
		t.SessionDuration,
		t.TranscriptionText,
		boolToInt(t.ZoomEase),
		t.PollUsability,
		boolToInt(t.ResourceAccess),
		t.PresessionAnxiety,
		t.ReassuranceProvided,
		t.InfoUseful,
		boolToInt(t.InfoMissing),
		boolToInt(t.InfoTakeawayDesired),
		boolToInt(t.ExerciseEngaged),
		boolToInt(t.LifestyleChange),
		boolToInt(t.PostopAdherence),
		boolToInt(t.FamilyInvolved),
		boolToInt(t.SupportNeeded),
	)
	if err != nil {
		return fmt.Errorf("failed to create transcription: %w", err)
	}
	return nil
}

// ListByUpload returns all transcriptions attached to an upload
func (r *TranscriptionRepository) ListByUpload(uploadID int64) ([]Transcription, error) {
	return r.list("t.upload_id = ?", uploadID)
}

// ListForOwner returns transcriptions whose upload is owned by the given
// user and carries the given status.
func (r *TranscriptionRepository) ListForOwner(ownerID int64, status string) ([]Transcription, error) {
	return r.list("u.uploaded_by = ? AND u.status = ?", ownerID, status)
}

func (r *TranscriptionRepository) list(where string, args ...interface{}) ([]Transcription, error) {
	rows, err := r.db.Query(`
		SELECT t.id, t.upload_id, t.session_id, t.participant_id, t.session_date,
		       t.session_duration, t.transcription_text,
		       t.zoom_ease, t.poll_usability, t.resource_access, t.presession_anxiety,
		       t.reassurance_provided, t.info_useful, t.info_missing,
		       t.info_takeaway_desired, t.exercise_engaged, t.lifestyle_change,
		       t.postop_adherence, t.family_involved, t.support_needed
		FROM transcriptions t
		JOIN uploads u ON t.upload_id = u.id
		WHERE `+where+`
		ORDER BY t.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcriptions: %w", err)
	}
	defer rows.Close()

	var result []Transcription
	for rows.Next() {
		var t Transcription
		var zoomEase, resourceAccess, infoMissing, infoTakeaway int64
		var exercise, lifestyle, postop, family, support int64
		if err := rows.Scan(
			&t.ID,
			&t.UploadID,
			&t.SessionID,
			&t.ParticipantID,
			&t.SessionDate,
			&t.SessionDuration,
			&t.TranscriptionText,
			&zoomEase,
			&t.PollUsability,
			&resourceAccess,
			&t.PresessionAnxiety,
			&t.ReassuranceProvided,
			&t.InfoUseful,
			&infoMissing,
			&infoTakeaway,
			&exercise,
			&lifestyle,
			&postop,
			&family,
			&support,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		t.ZoomEase = zoomEase != 0
		t.ResourceAccess = resourceAccess != 0
		t.InfoMissing = infoMissing != 0
		t.InfoTakeawayDesired = infoTakeaway != 0
		t.ExerciseEngaged = exercise != 0
		t.LifestyleChange = lifestyle != 0
		t.PostopAdherence = postop != 0
		t.FamilyInvolved = family != 0
		t.SupportNeeded = support != 0
		result = append(result, t)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
