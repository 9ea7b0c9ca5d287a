package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) (*DB, string) {
	tmpDir, err := os.MkdirTemp("", "mrpc-storage-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := Open(filepath.Join(tmpDir, "mrpc.db"), zap.NewNop())
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	return db, tmpDir
}

func teardownTestDB(t *testing.T, db *DB, tmpDir string) {
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		t.Errorf("Failed to remove temp dir: %v", err)
	}
}

// createTestUser inserts a user row directly and returns its id
func createTestUser(t *testing.T, db *DB, email string) int64 {
	result, err := db.Exec(`
		INSERT INTO users (first_name, last_name, email, password_hash, is_active)
		VALUES ('Test', 'User', ?, 'x', 1)
	`, email)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get user id: %v", err)
	}
	return id
}

// createTestUpload inserts an active upload for the given user
func createTestUpload(t *testing.T, db *DB, userID int64, uploadType string) int64 {
	uploads := NewUploadRepository(db)
	var uploadID int64
	err := db.WithTx(func(tx *sql.Tx) error {
		var err error
		uploadID, err = uploads.CreateTx(tx, &Upload{
			Filename:   "test.csv",
			Label:      "test upload",
			UploadedBy: userID,
			UploadType: uploadType,
		})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create test upload: %v", err)
	}
	return uploadID
}

// createTestPost inserts a post attached to an upload and returns the
// external id and surrogate key
func createTestPost(t *testing.T, db *DB, uploadID int64, externalID, title, question string) int64 {
	posts := NewPostRepository(db)
	var postID int64
	err := db.WithTx(func(tx *sql.Tx) error {
		var err error
		postID, err = posts.CreateTx(tx, &Post{
			ID:                  externalID,
			Forum:               "forum-a",
			OriginalTitle:       &title,
			LLMInferredQuestion: &question,
			UploadID:            &uploadID,
		})
		if err != nil {
			return err
		}
		if question != "" {
			model := "upload_v1"
			annotations := NewAnnotationRepository(db, posts)
			return annotations.CreateAIQuestionTx(tx, &AIQuestion{
				PostID:       postID,
				QuestionText: question,
				ModelVersion: &model,
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create test post: %v", err)
	}
	return postID
}

func TestDatabaseInitialization(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	dbPath := filepath.Join(tmpDir, "mrpc.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatalf("Database file was not created at %s", dbPath)
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "mrpc.db")
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	db2, err := Open(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer func() { _ = db2.Close() }()

	version, err := db2.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d after reopen, got %d", currentSchemaVersion, version)
	}
}

func TestLegacyUnversionedDatabaseMigrates(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer func() { _ = os.RemoveAll(tmpDir) }()

	// Simulate a database created before version tracking existed
	if _, err := db.Exec("DROP TABLE schema_version"); err != nil {
		t.Fatalf("Failed to drop schema_version: %v", err)
	}
	dbPath := filepath.Join(tmpDir, "mrpc.db")
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	db2, err := Open(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to reopen legacy database: %v", err)
	}
	defer func() { _ = db2.Close() }()

	version, err := db2.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected legacy database to migrate to version %d, got %d", currentSchemaVersion, version)
	}
}

func TestCorruptedVersionTableIsRebuilt(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer func() { _ = os.RemoveAll(tmpDir) }()

	// Replace schema_version with a table missing the version column
	if _, err := db.Exec("DROP TABLE schema_version"); err != nil {
		t.Fatalf("Failed to drop schema_version: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE schema_version (id INTEGER PRIMARY KEY, note TEXT)"); err != nil {
		t.Fatalf("Failed to create corrupted table: %v", err)
	}
	dbPath := filepath.Join(tmpDir, "mrpc.db")
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	db2, err := Open(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to reopen database with corrupted version table: %v", err)
	}
	defer func() { _ = db2.Close() }()

	version, err := db2.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected rebuilt database at version %d, got %d", currentSchemaVersion, version)
	}
}

func TestFutureSchemaVersionRejected(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if _, err := db.Exec("INSERT INTO schema_version (version, description) VALUES (99, 'future')"); err != nil {
		t.Fatalf("Failed to insert future version: %v", err)
	}
	dbPath := filepath.Join(tmpDir, "mrpc.db")
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	if _, err := Open(dbPath, zap.NewNop()); err == nil {
		t.Fatal("Expected open to fail for a future schema version")
	}
}

func TestMigrationBackfillsFeedbackUserID(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	userID := createTestUser(t, db, "owner@example.com")
	uploadID := createTestUpload(t, db, userID, UploadTypeForum)
	postID := createTestPost(t, db, uploadID, "ext-1", "Title", "Question")

	// Simulate a pre-v2 row with no user attribution
	if _, err := db.Exec(`
		INSERT INTO inference_feedback (post_id, inference_type, rating, feedback_text, response_id, user_id)
		VALUES (?, 'question', 'positive', '', 'resp-1', NULL)
	`, postID); err != nil {
		t.Fatalf("Failed to insert feedback: %v", err)
	}

	if err := db.migrateV1toV2(); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	var attributed int64
	err := db.QueryRow("SELECT user_id FROM inference_feedback WHERE response_id = 'resp-1'").Scan(&attributed)
	if err != nil {
		t.Fatalf("Failed to read feedback: %v", err)
	}
	if attributed != 1 {
		t.Errorf("Expected NULL user_id backfilled to 1, got %d", attributed)
	}
}
