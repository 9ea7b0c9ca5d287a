package access

import (
	"go.uber.org/zap"

	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

// Identity is the authenticated caller. The zero value means no
// authenticated user; reads then return nothing and admin-gated operations
// fail.
type Identity struct {
	UserID int64
}

// IsZero reports whether no user is attached
func (id Identity) IsZero() bool {
	return id.UserID == 0
}

// Scope is a resolved row-visibility constraint applied to every listing
// query. Exactly one of Empty, AllUsers, or OwnerID describes it.
type Scope struct {
	Empty    bool
	AllUsers bool
	OwnerID  int64
	Status   string
}

// Service resolves identities into scopes and runs scoped document reads.
// AdminID is the single account allowed to bypass ownership filtering.
type Service struct {
	db      *storage.DB
	adminID int64
	logger  *zap.Logger
}

// NewService creates a new access service
func NewService(db *storage.DB, adminID int64, logger *zap.Logger) *Service {
	return &Service{db: db, adminID: adminID, logger: logger}
}

// IsAdmin reports whether the identity is the administrative account
func (s *Service) IsAdmin(identity Identity) bool {
	return !identity.IsZero() && identity.UserID == s.adminID
}

// RequireAdmin fails unless the identity is the administrative account.
// A zero identity fails too; admin access is never ambient.
func (s *Service) RequireAdmin(identity Identity) error {
	if identity.IsZero() {
		return errors.New(errors.Unauthorized, "admin access requires an authenticated user")
	}
	if identity.UserID != s.adminID {
		return errors.Newf(errors.Unauthorized, "user %d is not the administrator", identity.UserID)
	}
	return nil
}

// Resolve computes the row scope for an identity. Requesting allUsers is
// honored only for the administrator; anyone else fails closed. A zero
// identity without the override resolves to the empty scope.
func (s *Service) Resolve(identity Identity, allUsers bool, status string) (Scope, error) {
	if status == "" {
		status = storage.UploadStatusActive
	}
	if allUsers {
		if err := s.RequireAdmin(identity); err != nil {
			return Scope{}, err
		}
		return Scope{AllUsers: true, Status: status}, nil
	}
	if identity.IsZero() {
		s.logger.Debug("unauthenticated read resolves to empty scope")
		return Scope{Empty: true, Status: status}, nil
	}
	return Scope{OwnerID: identity.UserID, Status: status}, nil
}

// Document is one post row in the flat listing format
type Document struct {
	ID             string
	Forum          string
	PostType       *string
	Username       *string
	OriginalTitle  *string
	OriginalPost   *string
	PostURL        *string
	Question       string
	Cluster        *int64
	ClusterLabel   *string
	LLMClusterName string
	DatePosted     *string
	Umap1          *float64
	Umap2          *float64
	Umap3          *float64
	UploadID       int64
}

// ListOptions controls a document listing
type ListOptions struct {
	AllUsers bool
	Status   string
}

// ListDocuments returns the posts visible to the identity, newest first.
// Visibility follows Resolve: own active uploads by default, everything
// under the admin override.
func (s *Service) ListDocuments(identity Identity, opts ListOptions) ([]Document, error) {
	scope, err := s.Resolve(identity, opts.AllUsers, opts.Status)
	if err != nil {
		return nil, err
	}
	if scope.Empty {
		return []Document{}, nil
	}

	query := `
		SELECT p.id, p.forum, p.post_type, p.username, p.original_title, p.original_post,
		       p.post_url,
		       COALESCE(aq.question_text, COALESCE(p.llm_inferred_question, '')),
		       p.cluster, p.cluster_label,
		       COALESCE(p.llm_cluster_name, ''),
		       p.date_posted, p.umap_1, p.umap_2, p.umap_3, p.upload_id
		FROM posts p
		JOIN uploads u ON p.upload_id = u.id
		LEFT JOIN ai_questions aq ON p.post_id = aq.post_id
		WHERE u.status = ?
	`
	args := []interface{}{scope.Status}
	if !scope.AllUsers {
		query += " AND u.uploaded_by = ?"
		args = append(args, scope.OwnerID)
	}
	query += " ORDER BY p.date_posted DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to list documents", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(
			&d.ID,
			&d.Forum,
			&d.PostType,
			&d.Username,
			&d.OriginalTitle,
			&d.OriginalPost,
			&d.PostURL,
			&d.Question,
			&d.Cluster,
			&d.ClusterLabel,
			&d.LLMClusterName,
			&d.DatePosted,
			&d.Umap1,
			&d.Umap2,
			&d.Umap3,
			&d.UploadID,
		); err != nil {
			return nil, errors.Wrap(errors.StoreError, "failed to scan document", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to read documents", err)
	}
	return docs, nil
}
