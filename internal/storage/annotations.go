package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AIQuestion represents a machine-inferred question attached to a post
type AIQuestion struct {
	ID              int64
	PostID          int64
	QuestionText    string
	ConfidenceScore *float64
	ModelVersion    *string
}

// AICategory represents a machine-inferred category attached to a post
type AICategory struct {
	ID              int64
	PostID          int64
	CategoryType    string
	CategoryValue   string
	ConfidenceScore *float64
	ModelVersion    *string
}

// UserQuestion is a reviewer-authored question on a post
type UserQuestion struct {
	PostID       int64
	QuestionID   string
	QuestionText string
	NotesText    string
}

// CategoryNote is a reviewer-authored note on a post's categorization
type CategoryNote struct {
	PostID    int64
	NoteID    string
	NotesText string
}

// ItemTags groups a post's tag values by type with their provenance
type ItemTags struct {
	Groups    []TagValue
	Subgroups []TagValue
	Tags      []TagValue
}

// TagValue is a single tag with its source (user-assigned or model-assigned)
type TagValue struct {
	Value  string
	Source string // "user" | "ai"
}

// AvailableTags lists every distinct tag value per type
type AvailableTags struct {
	Groups    []string
	Subgroups []string
	Tags      []string
}

// tagTypes are the category types treated as tags in ai_categories
var tagTypes = []string{"group", "subgroup", "tag"}

// AnnotationRepository provides operations over the question, category, and
// tag tables. Save and delete operations addressed by external post id are
// soft: an unknown id yields false rather than an error.
type AnnotationRepository struct {
	db     *DB
	posts  *PostRepository
	logger *zap.Logger
}

// NewAnnotationRepository creates a new annotation repository
func NewAnnotationRepository(db *DB, posts *PostRepository) *AnnotationRepository {
	return &AnnotationRepository{db: db, posts: posts, logger: db.logger}
}

// CreateAIQuestionTx inserts an AI question inside an existing transaction
func (r *AnnotationRepository) CreateAIQuestionTx(tx *sql.Tx, q *AIQuestion) error {
	_, err := tx.Exec(`
		INSERT INTO ai_questions (post_id, question_text, confidence_score, model_version)
		VALUES (?, ?, ?, ?)
	`, q.PostID, q.QuestionText, q.ConfidenceScore, q.ModelVersion)
	if err != nil {
		return fmt.Errorf("failed to create ai question: %w", err)
	}
	return nil
}

// CreateAICategoryTx inserts an AI category inside an existing transaction
func (r *AnnotationRepository) CreateAICategoryTx(tx *sql.Tx, c *AICategory) error {
	_, err := tx.Exec(`
		INSERT INTO ai_categories (post_id, category_type, category_value, confidence_score, model_version)
		VALUES (?, ?, ?, ?, ?)
	`, c.PostID, c.CategoryType, c.CategoryValue, c.ConfidenceScore, c.ModelVersion)
	if err != nil {
		return fmt.Errorf("failed to create ai category: %w", err)
	}
	return nil
}

// EffectiveAIQuestions returns the AI questions for a post, falling back to
// the legacy llm_inferred_question column when no normalized rows exist.
// Unknown external id yields an empty slice.
func (r *AnnotationRepository) EffectiveAIQuestions(externalID string) ([]AIQuestion, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT id, post_id, question_text, confidence_score, model_version
		FROM ai_questions
		WHERE post_id = ?
		ORDER BY created_at ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ai questions: %w", err)
	}
	defer rows.Close()

	var questions []AIQuestion
	for rows.Next() {
		var q AIQuestion
		if err := rows.Scan(&q.ID, &q.PostID, &q.QuestionText, &q.ConfidenceScore, &q.ModelVersion); err != nil {
			return nil, fmt.Errorf("failed to scan ai question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		return questions, nil
	}

	// Legacy path: posts imported before the normalized table carried a
	// single inferred question on the post row itself.
	var legacy sql.NullString
	err = r.db.QueryRow("SELECT llm_inferred_question FROM posts WHERE post_id = ?", postID).Scan(&legacy)
	if err != nil {
		return nil, fmt.Errorf("failed to get legacy question: %w", err)
	}
	if legacy.Valid && legacy.String != "" {
		questions = append(questions, AIQuestion{PostID: postID, QuestionText: legacy.String})
	}
	return questions, nil
}

// AICategories returns all AI categories for a post. Unknown external id
// yields an empty slice.
func (r *AnnotationRepository) AICategories(externalID string) ([]AICategory, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT id, post_id, category_type, category_value, confidence_score, model_version
		FROM ai_categories
		WHERE post_id = ?
		ORDER BY created_at ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ai categories: %w", err)
	}
	defer rows.Close()

	var categories []AICategory
	for rows.Next() {
		var c AICategory
		if err := rows.Scan(&c.ID, &c.PostID, &c.CategoryType, &c.CategoryValue, &c.ConfidenceScore, &c.ModelVersion); err != nil {
			return nil, fmt.Errorf("failed to scan ai category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SaveUserQuestion inserts or replaces a reviewer question keyed by
// (post, question_id). Returns false when the post does not exist.
func (r *AnnotationRepository) SaveUserQuestion(externalID, questionID, questionText, notesText string) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		r.logger.Warn("save user question for unknown post", zap.String("post_id", externalID))
		return false, nil
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO users_questions (post_id, question_id, question_text, notes_text, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, postID, questionID, questionText, notesText)
	if err != nil {
		return false, fmt.Errorf("failed to save user question: %w", err)
	}
	return true, nil
}

// UserQuestions returns all reviewer questions for a post in creation order
func (r *AnnotationRepository) UserQuestions(externalID string) ([]UserQuestion, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT post_id, question_id, question_text, notes_text
		FROM users_questions
		WHERE post_id = ?
		ORDER BY created_at ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user questions: %w", err)
	}
	defer rows.Close()

	var questions []UserQuestion
	for rows.Next() {
		var q UserQuestion
		if err := rows.Scan(&q.PostID, &q.QuestionID, &q.QuestionText, &q.NotesText); err != nil {
			return nil, fmt.Errorf("failed to scan user question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteUserQuestion removes a reviewer question. Returns false when either
// the post or the question does not exist.
func (r *AnnotationRepository) DeleteUserQuestion(externalID, questionID string) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		return false, nil
	}

	result, err := r.db.Exec(`
		DELETE FROM users_questions WHERE post_id = ? AND question_id = ?
	`, postID, questionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete user question: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveCategoryNote inserts or replaces a reviewer note keyed by
// (post, note_id). Returns false when the post does not exist.
func (r *AnnotationRepository) SaveCategoryNote(externalID, noteID, notesText string) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		r.logger.Warn("save category note for unknown post", zap.String("post_id", externalID))
		return false, nil
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO users_categories (post_id, note_id, notes_text, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, postID, noteID, notesText)
	if err != nil {
		return false, fmt.Errorf("failed to save category note: %w", err)
	}

	if err := r.RebuildTagRegistry(); err != nil {
		r.logger.Warn("tag registry rebuild failed", zap.Error(err))
	}
	return true, nil
}

// CategoryNotes returns all reviewer notes for a post in creation order
func (r *AnnotationRepository) CategoryNotes(externalID string) ([]CategoryNote, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT post_id, note_id, notes_text
		FROM users_categories
		WHERE post_id = ?
		ORDER BY created_at ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get category notes: %w", err)
	}
	defer rows.Close()

	var notes []CategoryNote
	for rows.Next() {
		var n CategoryNote
		if err := rows.Scan(&n.PostID, &n.NoteID, &n.NotesText); err != nil {
			return nil, fmt.Errorf("failed to scan category note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DeleteCategoryNote removes a reviewer note. Returns false when either the
// post or the note does not exist.
func (r *AnnotationRepository) DeleteCategoryNote(externalID, noteID string) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		return false, nil
	}

	result, err := r.db.Exec(`
		DELETE FROM users_categories WHERE post_id = ? AND note_id = ?
	`, postID, noteID)
	if err != nil {
		return false, fmt.Errorf("failed to delete category note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TagsForItem returns a post's tags grouped by type, with the source derived
// from the recorded model version. Unknown external id yields empty groups.
func (r *AnnotationRepository) TagsForItem(externalID string) (*ItemTags, error) {
	tags := &ItemTags{}
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return tags, nil
	}

	rows, err := r.db.Query(`
		SELECT category_type, category_value,
		       CASE WHEN model_version LIKE '%user%' THEN 'user' ELSE 'ai' END
		FROM ai_categories
		WHERE post_id = ? AND category_type IN ('group', 'subgroup', 'tag')
		ORDER BY category_type, category_value
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tagType string
		var tv TagValue
		if err := rows.Scan(&tagType, &tv.Value, &tv.Source); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		switch tagType {
		case "group":
			tags.Groups = append(tags.Groups, tv)
		case "subgroup":
			tags.Subgroups = append(tags.Subgroups, tv)
		case "tag":
			tags.Tags = append(tags.Tags, tv)
		}
	}
	return tags, rows.Err()
}

// SaveTagsForItem replaces a post's tags across the three tag types and
// rebuilds the registry. Returns false when the post does not exist.
func (r *AnnotationRepository) SaveTagsForItem(externalID string, tags *ItemTags, source string) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		r.logger.Warn("save tags for unknown post", zap.String("post_id", externalID))
		return false, nil
	}

	err = r.db.WithTx(func(tx *sql.Tx) error {
		placeholders := "'" + strings.Join(tagTypes, "', '") + "'"
		if _, err := tx.Exec(
			"DELETE FROM ai_categories WHERE post_id = ? AND category_type IN ("+placeholders+")",
			postID,
		); err != nil {
			return err
		}

		insert := func(tagType string, values []TagValue) error {
			for _, tv := range values {
				value := strings.TrimSpace(tv.Value)
				if value == "" {
					continue
				}
				tagSource := tv.Source
				if tagSource == "" {
					tagSource = source
				}
				modelVersion := "legacy_ai"
				if tagSource == "user" {
					modelVersion = "user_migrated"
				}
				if _, err := tx.Exec(`
					INSERT OR REPLACE INTO ai_categories (post_id, category_type, category_value, model_version)
					VALUES (?, ?, ?, ?)
				`, postID, tagType, value, modelVersion); err != nil {
					return err
				}
			}
			return nil
		}

		if err := insert("group", tags.Groups); err != nil {
			return err
		}
		if err := insert("subgroup", tags.Subgroups); err != nil {
			return err
		}
		if err := insert("tag", tags.Tags); err != nil {
			return err
		}
		return rebuildTagRegistryTx(tx)
	})
	if err != nil {
		return false, fmt.Errorf("failed to save tags: %w", err)
	}
	return true, nil
}

// GetAvailableTags lists every distinct tag value per type across all posts
func (r *AnnotationRepository) GetAvailableTags() (*AvailableTags, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT category_type, category_value
		FROM ai_categories
		WHERE category_type IN ('group', 'subgroup', 'tag')
		ORDER BY category_type, category_value
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get available tags: %w", err)
	}
	defer rows.Close()

	available := &AvailableTags{}
	for rows.Next() {
		var tagType, tagValue string
		if err := rows.Scan(&tagType, &tagValue); err != nil {
			return nil, fmt.Errorf("failed to scan available tag: %w", err)
		}
		switch tagType {
		case "group":
			available.Groups = append(available.Groups, tagValue)
		case "subgroup":
			available.Subgroups = append(available.Subgroups, tagValue)
		case "tag":
			available.Tags = append(available.Tags, tagValue)
		}
	}
	return available, rows.Err()
}

// PostsByTag returns the external ids of posts carrying the given tag
func (r *AnnotationRepository) PostsByTag(tagType, tagValue string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT p.id
		FROM ai_categories ac
		JOIN posts p ON ac.post_id = p.post_id
		WHERE ac.category_type = ? AND ac.category_value = ?
		ORDER BY p.post_id
	`, tagType, tagValue)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts by tag: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RebuildTagRegistry recomputes the usage-count cache from ai_categories
func (r *AnnotationRepository) RebuildTagRegistry() error {
	return r.db.WithTx(rebuildTagRegistryTx)
}

func rebuildTagRegistryTx(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM tag_registry"); err != nil {
		return fmt.Errorf("failed to clear tag registry: %w", err)
	}
	_, err := tx.Exec(`
		INSERT INTO tag_registry (tag_type, tag_value, usage_count)
		SELECT category_type, category_value, COUNT(*)
		FROM ai_categories
		WHERE category_type IN ('group', 'subgroup', 'tag')
		GROUP BY category_type, category_value
	`)
	if err != nil {
		return fmt.Errorf("failed to rebuild tag registry: %w", err)
	}
	return nil
}
