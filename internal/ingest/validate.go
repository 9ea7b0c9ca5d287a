package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// transcriptionColumns are all required for transcription uploads
var transcriptionColumns = []string{
	"session_id",
	"participant_id",
	"zoom_ease",
	"poll_usability",
	"resource_access",
	"presession_anxiety",
	"reassurance_provided",
	"info_useful",
	"info_missing",
	"info_takeaway_desired",
	"exercise_engaged",
	"lifestyle_change",
	"postop_adherence",
	"family_involved",
	"support_needed",
}

var likertColumns = []string{
	"poll_usability",
	"presession_anxiety",
	"reassurance_provided",
	"info_useful",
}

var booleanColumns = []string{
	"zoom_ease",
	"resource_access",
	"info_missing",
	"info_takeaway_desired",
	"exercise_engaged",
	"lifestyle_change",
	"postop_adherence",
	"family_involved",
	"support_needed",
}

// ValidateForum checks a table against the forum upload contract.
// Returns an itemized list of problems; empty means valid.
func ValidateForum(t *Table) []string {
	var problems []string

	var missing []string
	for _, col := range []string{"forum", "original_title", "original_post"} {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")))
	}

	if !t.HasColumn("LLM_inferred_question") && !t.HasColumn("llm_inferred_question") {
		problems = append(problems,
			"Missing LLM inferred question column (expected 'LLM_inferred_question' or 'llm_inferred_question')")
	}

	hasUmap := (t.HasColumn("umap_x") && t.HasColumn("umap_y") && t.HasColumn("umap_z")) ||
		(t.HasColumn("umap_1") && t.HasColumn("umap_2") && t.HasColumn("umap_3"))
	if !hasUmap {
		problems = append(problems,
			"Missing UMAP coordinates (expected 'umap_x,umap_y,umap_z' or 'umap_1,umap_2,umap_3')")
	}

	if len(t.Rows) == 0 {
		problems = append(problems, "CSV file is empty")
	}
	return problems
}

// ValidateTranscription checks a table against the transcription contract:
// all structured fields present, ordinals strictly 1 to 5, booleans in a
// fixed accepted set. Returns an itemized list of problems.
func ValidateTranscription(t *Table) []string {
	var problems []string

	var missing []string
	for _, col := range transcriptionColumns {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")))
	}

	for _, col := range likertColumns {
		if !t.HasColumn(col) {
			continue
		}
		invalid := 0
		for i := range t.Rows {
			value := t.Value(i, col)
			if value == "" {
				continue
			}
			if _, ok := parseLikert(value); !ok {
				invalid++
			}
		}
		if invalid > 0 {
			problems = append(problems,
				fmt.Sprintf("%s must be 1-5 (found %d invalid values)", col, invalid))
		}
	}

	for _, col := range booleanColumns {
		if !t.HasColumn(col) {
			continue
		}
		invalid := 0
		for i := range t.Rows {
			value := t.Value(i, col)
			if value == "" {
				continue
			}
			if _, ok := parseBoolean(value); !ok {
				invalid++
			}
		}
		if invalid > 0 {
			problems = append(problems,
				fmt.Sprintf("%s must be True/False/Yes/No/1/0 (found %d invalid values)", col, invalid))
		}
	}

	if len(t.Rows) == 0 {
		problems = append(problems, "CSV file is empty")
	}
	return problems
}

// parseLikert accepts only whole numbers 1 through 5. Floats and boolean
// words fail; an ordinal answered "true" is bad data, not a 1.
func parseLikert(value string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	if n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

// parseBoolean accepts true/false, yes/no, y/n, and 1/0, case-insensitive
func parseBoolean(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}
