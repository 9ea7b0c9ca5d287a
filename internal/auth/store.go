package auth

import (
	"database/sql"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

// AdminUserID identifies the administrative account. Admin privileges attach
// to this identity, not to a role flag on the row.
const AdminUserID int64 = 1

// User represents an account row without its credential hash
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	IsActive  bool
}

// DisplayName returns the user's full name, falling back to email
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Email
}

// UserStore manages accounts and credential verification
type UserStore struct {
	db     *storage.DB
	logger *zap.Logger
}

// NewUserStore creates a new user store
func NewUserStore(db *storage.DB, logger *zap.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

// Create adds a user with a bcrypt-hashed password and returns the new id
func (s *UserStore) Create(firstName, lastName, email, password string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return 0, errors.New(errors.ValidationFailed, "email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, errors.Wrap(errors.StoreError, "failed to hash password", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO users (first_name, last_name, email, password_hash, is_active)
		VALUES (?, ?, ?, ?, 1)
	`, firstName, lastName, email, string(hash))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, errors.Newf(errors.ValidationFailed, "email %s is already registered", email)
		}
		return 0, errors.Wrap(errors.StoreError, "failed to create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.StoreError, "failed to get user id", err)
	}

	s.logger.Info("user created", zap.Int64("user_id", id), zap.String("email", email))
	return id, nil
}

// Verify checks a credential pair and returns the account on success.
// Inactive accounts and bad passwords both fail with UNAUTHORIZED.
func (s *UserStore) Verify(email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	var hash string
	var isActive int64
	err := s.db.QueryRow(`
		SELECT id, first_name, last_name, email, password_hash, is_active
		FROM users
		WHERE email = ?
	`, email).Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &hash, &isActive)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.Unauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to look up user", err)
	}

	if isActive == 0 {
		return nil, errors.Newf(errors.Unauthorized, "account %s is deactivated", email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, errors.New(errors.Unauthorized, "invalid credentials")
	}

	user.IsActive = true
	return &user, nil
}

// GetByID retrieves a user by id. Returns nil, nil when not found.
func (s *UserStore) GetByID(userID int64) (*User, error) {
	var user User
	var isActive int64
	err := s.db.QueryRow(`
		SELECT id, first_name, last_name, email, is_active
		FROM users
		WHERE id = ?
	`, userID).Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &isActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to get user", err)
	}
	user.IsActive = isActive != 0
	return &user, nil
}

// List returns all users ordered by id
func (s *UserStore) List() ([]User, error) {
	rows, err := s.db.Query(`
		SELECT id, first_name, last_name, email, is_active
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var isActive int64
		if err := rows.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &isActive); err != nil {
			return nil, errors.Wrap(errors.StoreError, "failed to scan user", err)
		}
		user.IsActive = isActive != 0
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetActive enables or disables an account
func (s *UserStore) SetActive(userID int64, active bool) error {
	result, err := s.db.Exec("UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolToInt(active), userID)
	if err != nil {
		return errors.Wrap(errors.StoreError, "failed to update user", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.StoreError, "failed to get rows affected", err)
	}
	if affected == 0 {
		return errors.Newf(errors.NotFound, "user %d not found", userID)
	}
	return nil
}

// IsAdmin reports whether the id is the administrative account
func IsAdmin(userID int64) bool {
	return userID == AdminUserID
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
