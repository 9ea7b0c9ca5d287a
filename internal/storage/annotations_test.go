package storage

import (
	"database/sql"
	"testing"
)

func newAnnotationFixture(t *testing.T, db *DB) (*AnnotationRepository, int64) {
	userID := createTestUser(t, db, "annotator@example.com")
	uploadID := createTestUpload(t, db, userID, UploadTypeForum)
	posts := NewPostRepository(db)
	return NewAnnotationRepository(db, posts), uploadID
}

func TestUserQuestionLifecycle(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	annotations, uploadID := newAnnotationFixture(t, db)
	createTestPost(t, db, uploadID, "ext-1", "Title", "Question")

	ok, err := annotations.SaveUserQuestion("ext-1", "q-1", "Is this safe?", "needs review")
	if err != nil {
		t.Fatalf("SaveUserQuestion failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected save to succeed")
	}

	// Same question id replaces, not duplicates
	if _, err := annotations.SaveUserQuestion("ext-1", "q-1", "Is this safe?", "updated note"); err != nil {
		t.Fatalf("SaveUserQuestion update failed: %v", err)
	}

	questions, err := annotations.UserQuestions("ext-1")
	if err != nil {
		t.Fatalf("UserQuestions failed: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("Expected 1 question after upsert, got %d", len(questions))
	}
	if questions[0].NotesText != "updated note" {
		t.Errorf("Expected updated note, got %q", questions[0].NotesText)
	}

	deleted, err := annotations.DeleteUserQuestion("ext-1", "q-1")
	if err != nil {
		t.Fatalf("DeleteUserQuestion failed: %v", err)
	}
	if !deleted {
		t.Error("Expected delete to report success")
	}

	deleted, err = annotations.DeleteUserQuestion("ext-1", "q-1")
	if err != nil {
		t.Fatalf("Second delete errored: %v", err)
	}
	if deleted {
		t.Error("Deleting an absent question must report false")
	}
}

func TestSoftWritesOnUnknownPost(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	annotations, _ := newAnnotationFixture(t, db)

	ok, err := annotations.SaveUserQuestion("missing", "q-1", "text", "")
	if err != nil {
		t.Fatalf("SaveUserQuestion errored: %v", err)
	}
	if ok {
		t.Error("Save against an unknown post must report false, not error")
	}

	ok, err = annotations.SaveCategoryNote("missing", "n-1", "note")
	if err != nil {
		t.Fatalf("SaveCategoryNote errored: %v", err)
	}
	if ok {
		t.Error("Note save against an unknown post must report false")
	}

	questions, err := annotations.UserQuestions("missing")
	if err != nil {
		t.Fatalf("UserQuestions errored: %v", err)
	}
	if len(questions) != 0 {
		t.Error("Reads on unknown posts must return empty results")
	}
}

func TestEffectiveAIQuestionsLegacyFallback(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	annotations, uploadID := newAnnotationFixture(t, db)
	posts := NewPostRepository(db)

	// A legacy post: question only on the post row, no normalized rows
	legacyQuestion := "Legacy inferred question"
	err := db.WithTx(func(tx *sql.Tx) error {
		_, err := posts.CreateTx(tx, &Post{
			ID:                  "legacy-1",
			Forum:               "forum-a",
			LLMInferredQuestion: &legacyQuestion,
			UploadID:            &uploadID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create legacy post: %v", err)
	}

	questions, err := annotations.EffectiveAIQuestions("legacy-1")
	if err != nil {
		t.Fatalf("EffectiveAIQuestions failed: %v", err)
	}
	if len(questions) != 1 || questions[0].QuestionText != legacyQuestion {
		t.Fatalf("Expected legacy fallback question, got %+v", questions)
	}

	// A normalized post: the table wins over the legacy column
	createTestPost(t, db, uploadID, "normal-1", "Title", "Normalized question")
	questions, err = annotations.EffectiveAIQuestions("normal-1")
	if err != nil {
		t.Fatalf("EffectiveAIQuestions failed: %v", err)
	}
	if len(questions) != 1 || questions[0].QuestionText != "Normalized question" {
		t.Fatalf("Expected normalized question, got %+v", questions)
	}
}

func TestTagsRoundTripAndRegistry(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	annotations, uploadID := newAnnotationFixture(t, db)
	createTestPost(t, db, uploadID, "ext-1", "Title", "Question")
	createTestPost(t, db, uploadID, "ext-2", "Other", "Other question")

	ok, err := annotations.SaveTagsForItem("ext-1", &ItemTags{
		Groups:    []TagValue{{Value: "Medical"}},
		Subgroups: []TagValue{{Value: "Recovery"}},
		Tags:      []TagValue{{Value: "Exercise"}, {Value: "  "}},
	}, "user")
	if err != nil {
		t.Fatalf("SaveTagsForItem failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected tag save to succeed")
	}

	tags, err := annotations.TagsForItem("ext-1")
	if err != nil {
		t.Fatalf("TagsForItem failed: %v", err)
	}
	if len(tags.Groups) != 1 || tags.Groups[0].Value != "Medical" || tags.Groups[0].Source != "user" {
		t.Errorf("Unexpected groups: %+v", tags.Groups)
	}
	if len(tags.Tags) != 1 {
		t.Errorf("Blank tag values must be dropped, got %+v", tags.Tags)
	}

	if _, err := annotations.SaveTagsForItem("ext-2", &ItemTags{
		Groups: []TagValue{{Value: "Medical"}},
	}, "user"); err != nil {
		t.Fatalf("Second SaveTagsForItem failed: %v", err)
	}

	var usage int64
	err = db.QueryRow(`
		SELECT usage_count FROM tag_registry WHERE tag_type = 'group' AND tag_value = 'Medical'
	`).Scan(&usage)
	if err != nil {
		t.Fatalf("Failed to read tag registry: %v", err)
	}
	if usage != 2 {
		t.Errorf("Expected registry usage 2, got %d", usage)
	}

	available, err := annotations.GetAvailableTags()
	if err != nil {
		t.Fatalf("GetAvailableTags failed: %v", err)
	}
	if len(available.Groups) != 1 || available.Groups[0] != "Medical" {
		t.Errorf("Unexpected available groups: %+v", available.Groups)
	}

	ids, err := annotations.PostsByTag("group", "Medical")
	if err != nil {
		t.Fatalf("PostsByTag failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 posts tagged Medical, got %d", len(ids))
	}
}
