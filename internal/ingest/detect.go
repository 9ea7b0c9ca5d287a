package ingest

import "mrpc/internal/storage"

// UploadTypeUnknown marks a table whose type could not be determined
const UploadTypeUnknown = "unknown"

// Columns that strongly indicate session-transcription data
var transcriptionIndicators = []string{
	"session_id",
	"participant_id",
	"zoom_ease",
	"poll_usability",
	"presession_anxiety",
	"reassurance_provided",
	"info_useful",
	"exercise_engaged",
	"lifestyle_change",
	"family_involved",
}

// Columns that strongly indicate forum data
var forumIndicators = []string{
	"forum",
	"original_title",
	"original_post",
	"cluster",
	"llm_inferred_question",
	"LLM_inferred_question",
	"umap_1",
	"umap_x",
}

// DetectType classifies a table by counting indicator columns.
// Transcription data needs several transcription indicators and at most one
// forum indicator; two forum indicators decide forum. Ambiguous tables
// default to forum for compatibility with older exports.
func DetectType(t *Table) string {
	if len(t.Rows) == 0 && len(t.Columns) == 0 {
		return UploadTypeUnknown
	}

	transcriptionScore := 0
	for _, col := range transcriptionIndicators {
		if t.HasColumn(col) {
			transcriptionScore++
		}
	}
	forumScore := 0
	for _, col := range forumIndicators {
		if t.HasColumn(col) {
			forumScore++
		}
	}

	if transcriptionScore >= 3 && forumScore <= 1 {
		return storage.UploadTypeTranscription
	}
	if forumScore >= 2 {
		return storage.UploadTypeForum
	}
	return storage.UploadTypeForum
}
