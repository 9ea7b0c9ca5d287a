package ingest

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mrpc/internal/access"
	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

// Result reports the outcome of one ingestion attempt. For rejected files
// Success is false and Errors itemizes the problems; nothing is stored.
type Result struct {
	Success        bool
	Message        string
	UploadID       int64
	UploadType     string
	NewCount       int64
	DuplicateCount int64
	TotalRows      int64
	Errors         []string
}

// Pipeline moves an uploaded file through detection, validation, duplicate
// suppression, and a single-transaction commit.
type Pipeline struct {
	db             *storage.DB
	posts          *storage.PostRepository
	annotations    *storage.AnnotationRepository
	uploads        *storage.UploadRepository
	transcriptions *storage.TranscriptionRepository
	logger         *zap.Logger
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(
	db *storage.DB,
	posts *storage.PostRepository,
	annotations *storage.AnnotationRepository,
	uploads *storage.UploadRepository,
	transcriptions *storage.TranscriptionRepository,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		db:             db,
		posts:          posts,
		annotations:    annotations,
		uploads:        uploads,
		transcriptions: transcriptions,
		logger:         logger,
	}
}

// Ingest processes a CSV (optionally gzip-compressed) upload end to end.
// declaredType may be empty for auto-detection; when set it must match what
// the columns say. Validation failures come back as an unsuccessful Result
// with nil error; only infrastructure failures return an error.
func (p *Pipeline) Ingest(identity access.Identity, data []byte, filename, label, comment, declaredType string) (*Result, error) {
	if identity.IsZero() {
		return nil, errors.New(errors.Unauthorized, "authentication required to upload files")
	}

	table, err := Parse(data)
	if err != nil {
		return &Result{Success: false, Message: err.Error(), Errors: []string{err.Error()}}, nil
	}

	detected := DetectType(table)
	uploadType := detected
	if declaredType != "" {
		if detected != declaredType {
			msg := fmt.Sprintf(
				"Data type mismatch: selected %q but data appears to be %q. Check the file or change the type selection.",
				declaredType, detected)
			return &Result{Success: false, Message: msg, Errors: []string{msg}}, nil
		}
		uploadType = declaredType
	}

	var problems []string
	if uploadType == storage.UploadTypeTranscription {
		problems = ValidateTranscription(table)
	} else {
		uploadType = storage.UploadTypeForum
		problems = ValidateForum(table)
	}
	if len(problems) > 0 {
		p.logger.Info("upload rejected",
			zap.String("filename", filename),
			zap.String("upload_type", uploadType),
			zap.Strings("problems", problems))
		return &Result{
			Success:    false,
			Message:    "validation failed",
			UploadType: uploadType,
			TotalRows:  int64(len(table.Rows)),
			Errors:     problems,
		}, nil
	}

	var result *Result
	if uploadType == storage.UploadTypeTranscription {
		result, err = p.commitTranscriptions(identity, table, filename, label, comment)
	} else {
		result, err = p.commitForum(identity, table, filename, label, comment)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("upload committed",
		zap.Int64("upload_id", result.UploadID),
		zap.String("upload_type", result.UploadType),
		zap.Int64("new", result.NewCount),
		zap.Int64("duplicates", result.DuplicateCount))
	return result, nil
}

// commitForum stores surviving forum rows under a fresh upload record.
// Everything, including the final record count, lands in one transaction;
// a failure partway leaves no trace of the upload.
func (p *Pipeline) commitForum(identity access.Identity, table *Table, filename, label, comment string) (*Result, error) {
	existing, err := p.posts.DuplicateKeys(identity.UserID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to load duplicate keys", err)
	}

	result := &Result{
		Success:    true,
		UploadType: storage.UploadTypeForum,
		TotalRows:  int64(len(table.Rows)),
	}

	err = p.db.WithTx(func(tx *sql.Tx) error {
		uploadID, err := p.uploads.CreateTx(tx, &storage.Upload{
			Filename:   filename,
			Label:      label,
			Comment:    optional(comment),
			UploadedBy: identity.UserID,
			UploadType: storage.UploadTypeForum,
		})
		if err != nil {
			return err
		}
		result.UploadID = uploadID

		for i := range table.Rows {
			title := table.Value(i, "original_title")
			question := forumQuestion(table, i)

			if title != "" && question != "" && existing[[2]string{title, question}] {
				result.DuplicateCount++
				continue
			}

			post := &storage.Post{
				ID:                  uuid.NewString(),
				Forum:               table.Value(i, "forum"),
				PostType:            optional(table.Value(i, "post_type")),
				Username:            optional(table.Value(i, "username")),
				OriginalTitle:       optional(title),
				OriginalPost:        optional(table.Value(i, "original_post")),
				PostURL:             optional(table.Value(i, "post_url")),
				LLMInferredQuestion: optional(question),
				LLMClusterName:      optional(table.Value(i, "llm_cluster_name")),
				Cluster:             optionalInt(table.Value(i, "cluster")),
				ClusterLabel:        optional(table.Value(i, "cluster_label")),
				DatePosted:          optional(table.Value(i, "date_posted")),
				Umap1:               forumUmap(table, i, "umap_1", "umap_x"),
				Umap2:               forumUmap(table, i, "umap_2", "umap_y"),
				Umap3:               forumUmap(table, i, "umap_3", "umap_z"),
				UploadID:            &uploadID,
			}

			postID, err := p.posts.CreateTx(tx, post)
			if err != nil {
				return err
			}

			// Fan the legacy single-value columns into the normalized tables
			if question != "" {
				model := "upload_v1"
				if err := p.annotations.CreateAIQuestionTx(tx, &storage.AIQuestion{
					PostID:       postID,
					QuestionText: question,
					ModelVersion: &model,
				}); err != nil {
					return err
				}
			}
			if cluster := table.Value(i, "llm_cluster_name"); cluster != "" {
				model := "upload_v1"
				if err := p.annotations.CreateAICategoryTx(tx, &storage.AICategory{
					PostID:        postID,
					CategoryType:  "group",
					CategoryValue: cluster,
					ModelVersion:  &model,
				}); err != nil {
					return err
				}
			}

			if title != "" && question != "" {
				existing[[2]string{title, question}] = true
			}
			result.NewCount++
		}

		return p.uploads.SetRecordsCountTx(tx, uploadID, result.NewCount)
	})
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to commit upload", err)
	}

	result.Message = fmt.Sprintf("Added %d new records", result.NewCount)
	if result.DuplicateCount > 0 {
		result.Message += fmt.Sprintf(", skipped %d duplicates", result.DuplicateCount)
	}
	return result, nil
}

// commitTranscriptions stores transcription rows under a fresh upload record
func (p *Pipeline) commitTranscriptions(identity access.Identity, table *Table, filename, label, comment string) (*Result, error) {
	result := &Result{
		Success:    true,
		UploadType: storage.UploadTypeTranscription,
		TotalRows:  int64(len(table.Rows)),
	}

	err := p.db.WithTx(func(tx *sql.Tx) error {
		uploadID, err := p.uploads.CreateTx(tx, &storage.Upload{
			Filename:   filename,
			Label:      label,
			Comment:    optional(comment),
			UploadedBy: identity.UserID,
			UploadType: storage.UploadTypeTranscription,
		})
		if err != nil {
			return err
		}
		result.UploadID = uploadID

		for i := range table.Rows {
			t := &storage.Transcription{
				UploadID:          uploadID,
				SessionID:         table.Value(i, "session_id"),
				ParticipantID:     table.Value(i, "participant_id"),
				SessionDate:       optional(table.Value(i, "session_date")),
				SessionDuration:   optionalInt(table.Value(i, "session_duration")),
				TranscriptionText: optional(table.Value(i, "transcription_text")),
			}
			t.ZoomEase, _ = parseBoolean(table.Value(i, "zoom_ease"))
			t.ResourceAccess, _ = parseBoolean(table.Value(i, "resource_access"))
			t.InfoMissing, _ = parseBoolean(table.Value(i, "info_missing"))
			t.InfoTakeawayDesired, _ = parseBoolean(table.Value(i, "info_takeaway_desired"))
			t.ExerciseEngaged, _ = parseBoolean(table.Value(i, "exercise_engaged"))
			t.LifestyleChange, _ = parseBoolean(table.Value(i, "lifestyle_change"))
			t.PostopAdherence, _ = parseBoolean(table.Value(i, "postop_adherence"))
			t.FamilyInvolved, _ = parseBoolean(table.Value(i, "family_involved"))
			t.SupportNeeded, _ = parseBoolean(table.Value(i, "support_needed"))
			t.PollUsability, _ = parseLikert(table.Value(i, "poll_usability"))
			t.PresessionAnxiety, _ = parseLikert(table.Value(i, "presession_anxiety"))
			t.ReassuranceProvided, _ = parseLikert(table.Value(i, "reassurance_provided"))
			t.InfoUseful, _ = parseLikert(table.Value(i, "info_useful"))

			if err := p.transcriptions.CreateTx(tx, t); err != nil {
				return err
			}
			result.NewCount++
		}

		return p.uploads.SetRecordsCountTx(tx, uploadID, result.NewCount)
	})
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to commit upload", err)
	}

	result.Message = fmt.Sprintf("Saved %d transcription records", result.NewCount)
	return result, nil
}

// Preview parses and validates without storing anything
type Preview struct {
	TotalRows  int64
	Columns    []string
	Rows       []map[string]string
	UploadType string
	Valid      bool
	Errors     []string
}

// PreviewFile returns the first maxRows rows plus validation results for
// the detected type. Nothing is written.
func (p *Pipeline) PreviewFile(data []byte, maxRows int) (*Preview, error) {
	table, err := Parse(data)
	if err != nil {
		return nil, err
	}

	uploadType := DetectType(table)
	var problems []string
	if uploadType == storage.UploadTypeTranscription {
		problems = ValidateTranscription(table)
	} else {
		problems = ValidateForum(table)
	}

	rows := table.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	return &Preview{
		TotalRows:  int64(len(table.Rows)),
		Columns:    table.Columns,
		Rows:       rows,
		UploadType: uploadType,
		Valid:      len(problems) == 0,
		Errors:     problems,
	}, nil
}

// forumQuestion reads the AI question under either accepted column name
func forumQuestion(t *Table, row int) string {
	if q := t.Value(row, "LLM_inferred_question"); q != "" {
		return q
	}
	return t.Value(row, "llm_inferred_question")
}

// forumUmap reads a coordinate under the canonical or export column name
func forumUmap(t *Table, row int, canonical, export string) *float64 {
	value := t.Value(row, canonical)
	if value == "" {
		value = t.Value(row, export)
	}
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Exports sometimes write integers as floats
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int64(f)
	}
	return &n
}
