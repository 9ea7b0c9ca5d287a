package ingest

import (
	"strings"
	"testing"
)

func parseCSV(t *testing.T, content string) *Table {
	t.Helper()
	table, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return table
}

func TestValidateForumComplete(t *testing.T) {
	table := parseCSV(t, "forum,original_title,original_post,LLM_inferred_question,umap_1,umap_2,umap_3\n"+
		"f,t,p,q,0.1,0.2,0.3\n")
	if problems := ValidateForum(table); len(problems) != 0 {
		t.Errorf("Expected valid table, got %v", problems)
	}
}

func TestValidateForumAcceptsExportColumnNames(t *testing.T) {
	table := parseCSV(t, "forum,original_title,original_post,llm_inferred_question,umap_x,umap_y,umap_z\n"+
		"f,t,p,q,0.1,0.2,0.3\n")
	if problems := ValidateForum(table); len(problems) != 0 {
		t.Errorf("Expected export column names to validate, got %v", problems)
	}
}

func TestValidateForumItemizesProblems(t *testing.T) {
	table := parseCSV(t, "forum,username\nf,u\n")
	problems := ValidateForum(table)
	if len(problems) != 3 {
		t.Fatalf("Expected 3 problems, got %d: %v", len(problems), problems)
	}

	joined := strings.Join(problems, "\n")
	for _, want := range []string{"original_title", "LLM inferred question", "UMAP"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected problems to mention %q: %v", want, problems)
		}
	}
}

func TestValidateForumEmptyFile(t *testing.T) {
	table := parseCSV(t, "forum,original_title,original_post,LLM_inferred_question,umap_1,umap_2,umap_3\n")
	problems := ValidateForum(table)
	if len(problems) != 1 || !strings.Contains(problems[0], "empty") {
		t.Errorf("Expected empty-file problem, got %v", problems)
	}
}

func transcriptionHeader() string {
	return strings.Join(transcriptionColumns, ",")
}

func TestValidateTranscriptionComplete(t *testing.T) {
	table := parseCSV(t, transcriptionHeader()+"\n"+
		"S1,P1,true,4,yes,2,5,3,no,false,y,n,1,0,true\n")
	if problems := ValidateTranscription(table); len(problems) != 0 {
		t.Errorf("Expected valid transcription table, got %v", problems)
	}
}

func TestValidateTranscriptionNamesMissingColumn(t *testing.T) {
	var cols []string
	for _, col := range transcriptionColumns {
		if col != "support_needed" {
			cols = append(cols, col)
		}
	}
	table := parseCSV(t, strings.Join(cols, ",")+"\n"+
		"S1,P1,true,4,yes,2,5,3,no,false,y,n,1,0\n")

	problems := ValidateTranscription(table)
	if len(problems) == 0 {
		t.Fatal("Expected a validation problem")
	}
	if !strings.Contains(problems[0], "support_needed") {
		t.Errorf("Problem must name the missing column: %v", problems)
	}
}

func TestValidateTranscriptionRejectsBooleanLikert(t *testing.T) {
	table := parseCSV(t, transcriptionHeader()+"\n"+
		"S1,P1,true,true,yes,2,5,3,no,false,y,n,1,0,true\n")

	problems := ValidateTranscription(table)
	if len(problems) != 1 || !strings.Contains(problems[0], "poll_usability") {
		t.Errorf("Expected poll_usability ordinal problem, got %v", problems)
	}
}

func TestValidateTranscriptionRejectsFloatLikertAndOutOfRange(t *testing.T) {
	table := parseCSV(t, transcriptionHeader()+"\n"+
		"S1,P1,true,3.5,yes,6,5,3,no,false,y,n,1,0,true\n")

	problems := ValidateTranscription(table)
	if len(problems) != 2 {
		t.Fatalf("Expected 2 ordinal problems, got %v", problems)
	}
}

func TestValidateTranscriptionRejectsBadBoolean(t *testing.T) {
	table := parseCSV(t, transcriptionHeader()+"\n"+
		"S1,P1,maybe,4,yes,2,5,3,no,false,y,n,1,0,true\n")

	problems := ValidateTranscription(table)
	if len(problems) != 1 || !strings.Contains(problems[0], "zoom_ease") {
		t.Errorf("Expected zoom_ease boolean problem, got %v", problems)
	}
}

func TestParseBooleanAcceptedForms(t *testing.T) {
	truthy := []string{"true", "TRUE", "Yes", "y", "1"}
	for _, v := range truthy {
		got, ok := parseBoolean(v)
		if !ok || !got {
			t.Errorf("Expected %q to parse true", v)
		}
	}
	falsy := []string{"false", "No", "n", "0"}
	for _, v := range falsy {
		got, ok := parseBoolean(v)
		if !ok || got {
			t.Errorf("Expected %q to parse false", v)
		}
	}
	for _, v := range []string{"2", "1.0", "on", ""} {
		if _, ok := parseBoolean(v); ok {
			t.Errorf("Expected %q to be rejected", v)
		}
	}
}
