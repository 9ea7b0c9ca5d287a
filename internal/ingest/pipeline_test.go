package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"mrpc/internal/access"
	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

type pipelineFixture struct {
	db       *storage.DB
	pipeline *Pipeline
	uploads  *storage.UploadRepository
	userID   int64
	tmpDir   string
}

func setupPipeline(t *testing.T) *pipelineFixture {
	tmpDir, err := os.MkdirTemp("", "mrpc-ingest-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := storage.Open(filepath.Join(tmpDir, "mrpc.db"), zap.NewNop())
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	result, err := db.Exec(`
		INSERT INTO users (first_name, last_name, email, password_hash, is_active)
		VALUES ('Test', 'User', 'uploader@example.com', 'x', 1)
	`)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	userID, _ := result.LastInsertId()

	posts := storage.NewPostRepository(db)
	annotations := storage.NewAnnotationRepository(db, posts)
	uploads := storage.NewUploadRepository(db)
	transcriptions := storage.NewTranscriptionRepository(db)

	return &pipelineFixture{
		db:       db,
		pipeline: NewPipeline(db, posts, annotations, uploads, transcriptions, zap.NewNop()),
		uploads:  uploads,
		userID:   userID,
		tmpDir:   tmpDir,
	}
}

func (f *pipelineFixture) teardown(t *testing.T) {
	if err := f.db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
	if err := os.RemoveAll(f.tmpDir); err != nil {
		t.Errorf("Failed to remove temp dir: %v", err)
	}
}

func (f *pipelineFixture) identity() access.Identity {
	return access.Identity{UserID: f.userID}
}

const forumHeader = "forum,original_title,original_post,LLM_inferred_question,umap_1,umap_2,umap_3\n"

func forumCSV(rows ...string) []byte {
	return []byte(forumHeader + strings.Join(rows, "\n") + "\n")
}

func TestIngestForumFile(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := forumCSV(
		"cancer-support,First post,Body one,What happens next?,0.1,0.2,0.3",
		"cancer-support,Second post,Body two,Is this normal?,0.4,0.5,0.6",
	)

	result, err := f.pipeline.Ingest(f.identity(), data, "posts.csv", "March posts", "", "")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got errors: %v", result.Errors)
	}
	if result.NewCount != 2 || result.DuplicateCount != 0 {
		t.Errorf("Expected 2 new, 0 duplicates, got %d/%d", result.NewCount, result.DuplicateCount)
	}
	if result.NewCount+result.DuplicateCount != result.TotalRows {
		t.Error("new + duplicates must equal submitted rows")
	}

	upload, err := f.uploads.GetByID(result.UploadID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if upload.RecordsCount != 2 {
		t.Errorf("Expected records_count 2, got %d", upload.RecordsCount)
	}
	if upload.Status != storage.UploadStatusActive {
		t.Errorf("New uploads must start active, got %q", upload.Status)
	}

	// The single-value columns fan out into the normalized tables
	var questions, categories int64
	if err := f.db.QueryRow("SELECT COUNT(*) FROM ai_questions").Scan(&questions); err != nil {
		t.Fatalf("Failed to count ai_questions: %v", err)
	}
	if questions != 2 {
		t.Errorf("Expected 2 ai_questions rows, got %d", questions)
	}
	if err := f.db.QueryRow("SELECT COUNT(*) FROM ai_categories").Scan(&categories); err != nil {
		t.Fatalf("Failed to count ai_categories: %v", err)
	}
	if categories != 0 {
		t.Errorf("Expected no ai_categories without llm_cluster_name, got %d", categories)
	}
}

func TestIngestSkipsDuplicates(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	first := forumCSV("cancer-support,Known post,Body,Known question,0.1,0.2,0.3")
	if _, err := f.pipeline.Ingest(f.identity(), first, "a.csv", "first", "", ""); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}

	second := forumCSV(
		"cancer-support,Known post,Body,Known question,0.1,0.2,0.3",
		"cancer-support,Fresh post,Body,Fresh question,0.4,0.5,0.6",
		"cancer-support,Another post,Body,Another question,0.7,0.8,0.9",
	)
	result, err := f.pipeline.Ingest(f.identity(), second, "b.csv", "second", "", "")
	if err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %v", result.Errors)
	}
	if result.NewCount != 2 || result.DuplicateCount != 1 || result.TotalRows != 3 {
		t.Errorf("Expected {2 new, 1 duplicate, 3 total}, got {%d, %d, %d}",
			result.NewCount, result.DuplicateCount, result.TotalRows)
	}
}

func TestReingestIsIdempotent(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := forumCSV(
		"cancer-support,Post one,Body,Question one,0.1,0.2,0.3",
		"cancer-support,Post two,Body,Question two,0.4,0.5,0.6",
	)
	if _, err := f.pipeline.Ingest(f.identity(), data, "a.csv", "first", "", ""); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}

	result, err := f.pipeline.Ingest(f.identity(), data, "a.csv", "again", "", "")
	if err != nil {
		t.Fatalf("Re-ingest failed: %v", err)
	}
	if result.NewCount != 0 || result.DuplicateCount != 2 {
		t.Errorf("Re-ingesting the same file must add nothing, got %d new / %d duplicates",
			result.NewCount, result.DuplicateCount)
	}
}

func TestDuplicateWindowIsPerUser(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	result, err := f.db.Exec(`
		INSERT INTO users (first_name, last_name, email, password_hash, is_active)
		VALUES ('Other', 'User', 'other@example.com', 'x', 1)
	`)
	if err != nil {
		t.Fatalf("Failed to create second user: %v", err)
	}
	otherID, _ := result.LastInsertId()

	data := forumCSV("cancer-support,Shared title,Body,Shared question,0.1,0.2,0.3")
	if _, err := f.pipeline.Ingest(f.identity(), data, "a.csv", "mine", "", ""); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}

	res, err := f.pipeline.Ingest(access.Identity{UserID: otherID}, data, "a.csv", "theirs", "", "")
	if err != nil {
		t.Fatalf("Second user's ingest failed: %v", err)
	}
	if res.NewCount != 1 || res.DuplicateCount != 0 {
		t.Errorf("Another user's identical rows are not duplicates, got %d new / %d dup",
			res.NewCount, res.DuplicateCount)
	}
}

func TestIngestRejectsInvalidForum(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := []byte("forum,original_title\nf,t\n")
	result, err := f.pipeline.Ingest(f.identity(), data, "bad.csv", "bad", "", "")
	if err != nil {
		t.Fatalf("Ingest errored: %v", err)
	}
	if result.Success {
		t.Fatal("Expected rejection")
	}
	if len(result.Errors) == 0 {
		t.Fatal("Expected itemized problems")
	}

	// Nothing stored on rejection
	uploads, err := f.uploads.List(storage.UploadFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(uploads) != 0 {
		t.Errorf("Rejected file must not create an upload, found %d", len(uploads))
	}
}

func TestIngestDeclaredTypeMismatch(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := forumCSV("cancer-support,Title,Body,Question,0.1,0.2,0.3")
	result, err := f.pipeline.Ingest(f.identity(), data, "a.csv", "mislabeled", "",
		storage.UploadTypeTranscription)
	if err != nil {
		t.Fatalf("Ingest errored: %v", err)
	}
	if result.Success {
		t.Fatal("Expected declared-type mismatch to reject")
	}
	if !strings.Contains(result.Message, "mismatch") {
		t.Errorf("Expected mismatch message, got %q", result.Message)
	}
}

func TestIngestTranscriptions(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := []byte(strings.Join(transcriptionColumns, ",") + "\n" +
		"S1,P1,true,4,yes,2,5,3,no,false,y,n,1,0,true\n" +
		"S2,P2,false,1,no,5,1,4,yes,true,n,y,0,1,false\n")

	result, err := f.pipeline.Ingest(f.identity(), data, "sessions.csv", "sessions", "", "")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %v", result.Errors)
	}
	if result.UploadType != storage.UploadTypeTranscription {
		t.Errorf("Expected transcription upload, got %q", result.UploadType)
	}
	if result.NewCount != 2 {
		t.Errorf("Expected 2 records, got %d", result.NewCount)
	}

	transcriptions := storage.NewTranscriptionRepository(f.db)
	rows, err := transcriptions.ListByUpload(result.UploadID)
	if err != nil {
		t.Fatalf("ListByUpload failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 stored transcriptions, got %d", len(rows))
	}
	if !rows[0].ZoomEase || rows[0].PollUsability != 4 {
		t.Errorf("First row mis-parsed: %+v", rows[0])
	}
}

func TestIngestGzipCompressed(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	plain := forumCSV("cancer-support,Zipped,Body,Question,0.1,0.2,0.3")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(plain); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	result, err := f.pipeline.Ingest(f.identity(), buf.Bytes(), "posts.csv.gz", "zipped", "", "")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !result.Success || result.NewCount != 1 {
		t.Errorf("Expected 1 record from gzip input, got %+v", result)
	}
}

func TestIngestRequiresIdentity(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := forumCSV("cancer-support,Title,Body,Question,0.1,0.2,0.3")
	_, err := f.pipeline.Ingest(access.Identity{}, data, "a.csv", "anon", "", "")
	if err == nil {
		t.Fatal("Expected error without identity")
	}
	if !errors.HasCode(err, errors.Unauthorized) {
		t.Errorf("Expected UNAUTHORIZED, got %v", err)
	}
}

func TestPreviewDoesNotStore(t *testing.T) {
	f := setupPipeline(t)
	defer f.teardown(t)

	data := forumCSV(
		"cancer-support,One,Body,Q1,0.1,0.2,0.3",
		"cancer-support,Two,Body,Q2,0.4,0.5,0.6",
		"cancer-support,Three,Body,Q3,0.7,0.8,0.9",
	)
	preview, err := f.pipeline.PreviewFile(data, 2)
	if err != nil {
		t.Fatalf("PreviewFile failed: %v", err)
	}
	if preview.TotalRows != 3 {
		t.Errorf("Expected 3 total rows, got %d", preview.TotalRows)
	}
	if len(preview.Rows) != 2 {
		t.Errorf("Expected 2 preview rows, got %d", len(preview.Rows))
	}
	if !preview.Valid {
		t.Errorf("Expected valid preview, got %v", preview.Errors)
	}

	uploads, err := f.uploads.List(storage.UploadFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(uploads) != 0 {
		t.Error("Preview must not store anything")
	}
}
