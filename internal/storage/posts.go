package storage

import (
	"database/sql"
	"fmt"
)

// Post represents a forum post row. PostID is the internal surrogate key;
// ID is the stable external UUID handed to callers.
type Post struct {
	PostID              int64
	ID                  string
	Forum               string
	PostType            *string
	Username            *string
	OriginalTitle       *string
	OriginalPost        *string
	PostURL             *string
	LLMInferredQuestion *string
	LLMClusterName      *string
	Cluster             *int64
	ClusterLabel        *string
	DatePosted          *string
	Umap1               *float64
	Umap2               *float64
	Umap3               *float64
	UploadID            *int64
}

// PostRepository provides operations over the posts table
type PostRepository struct {
	db *DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db}
}

// CreateTx inserts a post inside an existing transaction. Ingestion commits
// whole batches atomically, so inserts go through the caller's tx.
func (r *PostRepository) CreateTx(tx *sql.Tx, post *Post) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO posts (
			id, forum, post_type, username, original_title, original_post,
			post_url, llm_inferred_question, llm_cluster_name, cluster,
			cluster_label, date_posted, umap_1, umap_2, umap_3, upload_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		post.ID,
		post.Forum,
		post.PostType,
		post.Username,
		post.OriginalTitle,
		post.OriginalPost,
		post.PostURL,
		post.LLMInferredQuestion,
		post.LLMClusterName,
		post.Cluster,
		post.ClusterLabel,
		post.DatePosted,
		post.Umap1,
		post.Umap2,
		post.Umap3,
		post.UploadID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create post: %w", err)
	}

	postID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get post id: %w", err)
	}
	return postID, nil
}

// GetByExternalID retrieves a post by its external UUID.
// Returns nil, nil when no post matches.
func (r *PostRepository) GetByExternalID(externalID string) (*Post, error) {
	var post Post
	err := r.db.QueryRow(`
		SELECT post_id, id, forum, post_type, username, original_title,
		       original_post, post_url, llm_inferred_question, llm_cluster_name,
		       cluster, cluster_label, date_posted, umap_1, umap_2, umap_3, upload_id
		FROM posts
		WHERE id = ?
	`, externalID).Scan(
		&post.PostID,
		&post.ID,
		&post.Forum,
		&post.PostType,
		&post.Username,
		&post.OriginalTitle,
		&post.OriginalPost,
		&post.PostURL,
		&post.LLMInferredQuestion,
		&post.LLMClusterName,
		&post.Cluster,
		&post.ClusterLabel,
		&post.DatePosted,
		&post.Umap1,
		&post.Umap2,
		&post.Umap3,
		&post.UploadID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// ResolveInternalID translates an external UUID to the surrogate key.
// Returns 0, nil when the post does not exist.
func (r *PostRepository) ResolveInternalID(externalID string) (int64, error) {
	var postID int64
	err := r.db.QueryRow("SELECT post_id FROM posts WHERE id = ?", externalID).Scan(&postID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve post id: %w", err)
	}
	return postID, nil
}

// DuplicateKeys returns the (original_title, AI question text) pairs already
// committed by the given user. Ingestion uses these to skip rows the owner
// has already stored; rows without both parts never form a key.
func (r *PostRepository) DuplicateKeys(ownerID int64) (map[[2]string]bool, error) {
	rows, err := r.db.Query(`
		SELECT p.original_title, aq.question_text
		FROM posts p
		LEFT JOIN ai_questions aq ON p.post_id = aq.post_id
		JOIN uploads u ON p.upload_id = u.id
		WHERE p.original_title IS NOT NULL
		  AND aq.question_text IS NOT NULL
		  AND u.uploaded_by = ?
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[[2]string]bool)
	for rows.Next() {
		var title, question string
		if err := rows.Scan(&title, &question); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate key: %w", err)
		}
		if title != "" && question != "" {
			keys[[2]string{title, question}] = true
		}
	}
	return keys, rows.Err()
}

// PostStats summarizes the posts table for status reporting
type PostStats struct {
	TotalPosts   int64
	ForumCount   int64
	ClusterCount int64
}

// Stats returns summary counts over all posts
func (r *PostRepository) Stats() (*PostStats, error) {
	var stats PostStats
	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(DISTINCT forum),
		       COUNT(DISTINCT cluster)
		FROM posts
	`).Scan(&stats.TotalPosts, &stats.ForumCount, &stats.ClusterCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get post stats: %w", err)
	}
	return &stats, nil
}

// CountByUpload returns the number of posts attached to an upload
func (r *PostRepository) CountByUpload(uploadID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow("SELECT COUNT(*) FROM posts WHERE upload_id = ?", uploadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts for upload: %w", err)
	}
	return count, nil
}
