package aggregate

import (
	"strings"

	"go.uber.org/zap"

	"mrpc/internal/access"
	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

// Row is one aggregated listing entry. Posts sharing an original_title
// collapse into a single row; singleton columns take the first non-null
// value, and the question and category columns collect every distinct line
// across the group.
type Row struct {
	ID             string
	Forum          string
	PostType       *string
	Username       *string
	LLMClusterName *string
	OriginalTitle  string
	OriginalPost   *string
	PostURL        *string
	Cluster        *int64
	ClusterLabel   *string
	DatePosted     *string
	Umap1          *float64
	Umap2          *float64
	Umap3          *float64
	UploadID       *int64
	AllQuestions   string
	AllCategories  string
}

// Filters narrows the aggregation to one forum or one cluster topic.
// Empty strings mean no constraint.
type Filters struct {
	Forum string
	Topic string
}

// Engine runs per-title rollups over the posts visible to a scope
type Engine struct {
	db     *storage.DB
	access *access.Service
	logger *zap.Logger
}

// NewEngine creates a new aggregation engine
func NewEngine(db *storage.DB, accessSvc *access.Service, logger *zap.Logger) *Engine {
	return &Engine{db: db, access: accessSvc, logger: logger}
}

// ForListing aggregates visible posts into one row per distinct title.
// Question lines combine AI and reviewer questions; category lines combine
// AI category values and reviewer notes. Duplicate lines within a row are
// removed in first-seen order.
func (e *Engine) ForListing(identity access.Identity, allUsers bool, status string, filters Filters) ([]Row, error) {
	scope, err := e.access.Resolve(identity, allUsers, status)
	if err != nil {
		return nil, err
	}
	if scope.Empty {
		return []Row{}, nil
	}

	query := `
		SELECT
			MIN(p.id),
			p.forum,
			MIN(p.post_type),
			MIN(p.username),
			MIN(p.llm_cluster_name),
			p.original_title,
			MIN(p.original_post),
			MIN(p.post_url),
			MIN(p.cluster),
			MIN(p.cluster_label),
			MIN(p.date_posted),
			MIN(p.umap_1),
			MIN(p.umap_2),
			MIN(p.umap_3),
			MIN(p.upload_id),
			COALESCE(GROUP_CONCAT(aq.question_text, char(10)), '') ||
				CASE WHEN GROUP_CONCAT(aq.question_text, char(10)) IS NOT NULL
				          AND GROUP_CONCAT(uq.question_text, char(10)) IS NOT NULL
				     THEN char(10) ELSE '' END ||
				COALESCE(GROUP_CONCAT(uq.question_text, char(10)), ''),
			COALESCE(GROUP_CONCAT(ac.category_value, char(10)), '') ||
				CASE WHEN GROUP_CONCAT(ac.category_value, char(10)) IS NOT NULL
				          AND GROUP_CONCAT(uc.notes_text, char(10)) IS NOT NULL
				     THEN char(10) ELSE '' END ||
				COALESCE(GROUP_CONCAT(uc.notes_text, char(10)), '')
		FROM posts p
		JOIN uploads u ON p.upload_id = u.id
		LEFT JOIN ai_questions aq ON p.post_id = aq.post_id
		LEFT JOIN ai_categories ac ON p.post_id = ac.post_id
		LEFT JOIN users_questions uq ON p.post_id = uq.post_id
		LEFT JOIN users_categories uc ON p.post_id = uc.post_id
		WHERE u.status = ? AND p.original_title IS NOT NULL
	`
	args := []interface{}{scope.Status}
	if !scope.AllUsers {
		query += " AND u.uploaded_by = ?"
		args = append(args, scope.OwnerID)
	}
	if filters.Forum != "" {
		query += " AND p.forum = ?"
		args = append(args, filters.Forum)
	}
	if filters.Topic != "" {
		query += " AND p.llm_cluster_name = ?"
		args = append(args, filters.Topic)
	}
	query += " GROUP BY p.original_title ORDER BY MIN(p.date_posted) DESC"

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to aggregate posts", err)
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID,
			&r.Forum,
			&r.PostType,
			&r.Username,
			&r.LLMClusterName,
			&r.OriginalTitle,
			&r.OriginalPost,
			&r.PostURL,
			&r.Cluster,
			&r.ClusterLabel,
			&r.DatePosted,
			&r.Umap1,
			&r.Umap2,
			&r.Umap3,
			&r.UploadID,
			&r.AllQuestions,
			&r.AllCategories,
		); err != nil {
			return nil, errors.Wrap(errors.StoreError, "failed to scan aggregated row", err)
		}
		r.AllQuestions = dedupeLines(r.AllQuestions)
		r.AllCategories = dedupeLines(r.AllCategories)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to read aggregated rows", err)
	}

	e.logger.Debug("aggregated listing", zap.Int("rows", len(result)))
	return result, nil
}

// dedupeLines removes duplicate and blank lines, preserving the first-seen
// order of the survivors.
func dedupeLines(text string) string {
	if text == "" {
		return ""
	}
	seen := make(map[string]bool)
	var unique []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		unique = append(unique, line)
	}
	return strings.Join(unique, "\n")
}
