package auth

import (
	"database/sql"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mrpc/internal/errors"
)

// SeedUser is one account entry in the seed file
type SeedUser struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
}

// SeedFile is the on-disk format consumed by init
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// SeedFromFile creates accounts listed in a YAML seed file, skipping emails
// that already exist. Returns the number of accounts created. A missing file
// is not an error; init works without seed data.
func (s *UserStore) SeedFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Debug("no user seed file", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(errors.StoreError, "failed to read seed file", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, errors.Wrap(errors.ValidationFailed, "invalid seed file", err)
	}

	created := 0
	for _, u := range seed.Users {
		existing, err := s.getByEmail(u.Email)
		if err != nil {
			return created, err
		}
		if existing != nil {
			s.logger.Debug("seed user already exists", zap.String("email", u.Email))
			continue
		}
		if _, err := s.Create(u.FirstName, u.LastName, u.Email, u.Password); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		s.logger.Info("seeded users", zap.Int("created", created), zap.String("path", path))
	}
	return created, nil
}

func (s *UserStore) getByEmail(email string) (*User, error) {
	var user User
	var isActive int64
	err := s.db.QueryRow(`
		SELECT id, first_name, last_name, email, is_active
		FROM users
		WHERE email = ?
	`, email).Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &isActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.StoreError, "failed to look up user", err)
	}
	user.IsActive = isActive != 0
	return &user, nil
}
