package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Rating values stored in inference_feedback. RatingTextUpdate is a sentinel
// submitted when only the comment changes; it never ends up in the table
// unless no real rating exists yet.
const (
	RatingPositive   = "positive"
	RatingNegative   = "negative"
	RatingTextUpdate = "text_update"
)

// Feedback is a reviewer's verdict on one inference result for a post
type Feedback struct {
	PostExternalID string
	InferenceType  string
	Rating         string
	FeedbackText   string
	ResponseID     string
	UserID         int64
	UpdatedAt      string
}

// FeedbackRepository provides operations over the inference_feedback table
type FeedbackRepository struct {
	db     *DB
	posts  *PostRepository
	logger *zap.Logger
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *DB, posts *PostRepository) *FeedbackRepository {
	return &FeedbackRepository{db: db, posts: posts, logger: db.logger}
}

// Save records feedback keyed by (post, inference_type, response_id),
// merging with any existing row:
//   - a text_update against an existing positive/negative keeps the rating
//     and takes the new text
//   - a rating against an existing comment keeps the comment when the new
//     text is empty
//   - otherwise both new values win
//
// Returns false when the post does not exist.
func (r *FeedbackRepository) Save(externalID, inferenceType, rating, feedbackText, responseID string, userID int64) (bool, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return false, err
	}
	if postID == 0 {
		r.logger.Warn("save feedback for unknown post", zap.String("post_id", externalID))
		return false, nil
	}

	var existingRating, existingText sql.NullString
	err = r.db.QueryRow(`
		SELECT rating, feedback_text FROM inference_feedback
		WHERE post_id = ? AND inference_type = ? AND response_id = ?
	`, postID, inferenceType, responseID).Scan(&existingRating, &existingText)

	switch {
	case err == sql.ErrNoRows:
		_, err = r.db.Exec(`
			INSERT INTO inference_feedback
				(post_id, inference_type, rating, feedback_text, response_id, user_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, postID, inferenceType, rating, feedbackText, responseID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to insert feedback: %w", err)
		}

	case err != nil:
		return false, fmt.Errorf("failed to load existing feedback: %w", err)

	default:
		finalRating, finalText := mergeFeedback(
			existingRating.String, existingText.String, rating, feedbackText)

		_, err = r.db.Exec(`
			UPDATE inference_feedback
			SET rating = ?, feedback_text = ?, user_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE post_id = ? AND inference_type = ? AND response_id = ?
		`, finalRating, finalText, userID, postID, inferenceType, responseID)
		if err != nil {
			return false, fmt.Errorf("failed to update feedback: %w", err)
		}
	}

	r.logger.Debug("saved feedback",
		zap.String("post_id", externalID),
		zap.String("inference_type", inferenceType),
		zap.String("rating", rating),
		zap.Int64("user_id", userID))
	return true, nil
}

func mergeFeedback(existingRating, existingText, newRating, newText string) (string, string) {
	if newRating == RatingTextUpdate && (existingRating == RatingPositive || existingRating == RatingNegative) {
		return existingRating, newText
	}
	if (newRating == RatingPositive || newRating == RatingNegative) && existingText != "" && newText == "" {
		return newRating, existingText
	}
	return newRating, newText
}

// Load returns the most recent feedback for a post and inference type,
// or nil when none exists.
func (r *FeedbackRepository) Load(externalID, inferenceType string) (*Feedback, error) {
	postID, err := r.posts.ResolveInternalID(externalID)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		return nil, nil
	}

	var fb Feedback
	var rating, text, updatedAt sql.NullString
	var userID sql.NullInt64
	err = r.db.QueryRow(`
		SELECT p.id, f.inference_type, f.rating, f.feedback_text, f.response_id, f.user_id, f.updated_at
		FROM inference_feedback f
		JOIN posts p ON f.post_id = p.post_id
		WHERE f.post_id = ? AND f.inference_type = ?
		ORDER BY f.updated_at DESC
		LIMIT 1
	`, postID, inferenceType).Scan(
		&fb.PostExternalID,
		&fb.InferenceType,
		&rating,
		&text,
		&fb.ResponseID,
		&userID,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	fb.Rating = rating.String
	fb.FeedbackText = text.String
	fb.UserID = userID.Int64
	fb.UpdatedAt = updatedAt.String
	return &fb, nil
}
