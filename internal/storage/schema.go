package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Schema version tracking. Increment when making schema changes and add a
// migration step to runMigrations.
const currentSchemaVersion = 3

// versionState classifies the schema_version record found at startup
type versionState int

const (
	// versionEmpty means a brand new database with no entity tables
	versionEmpty versionState = iota
	// versionLegacy means entity tables exist but no version record: treat as v1
	versionLegacy
	// versionCorrupted means a schema_version table with the wrong column
	// shape: drop it and fall back to legacy/empty detection
	versionCorrupted
	// versionRecorded means a valid schema_version record was found
	versionRecorded
)

// ensureSchema brings the database to the current schema version.
// Detection runs once; any migration error aborts startup.
func (db *DB) ensureSchema() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		db.logger.Info("creating new database", zap.String("path", db.dbPath))
		return db.initializeSchema()
	case version < currentSchemaVersion:
		db.logger.Info("migrating database",
			zap.Int("from_version", version),
			zap.Int("to_version", currentSchemaVersion))
		return db.runMigrations(version)
	case version > currentSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	default:
		db.logger.Debug("database schema is up to date", zap.Int("version", version))
		return nil
	}
}

// getSchemaVersion determines the stored schema version, classifying the
// version record as empty / legacy-unversioned / corrupted / recorded.
// A corrupted record is dropped and rebuilt rather than trusted.
func (db *DB) getSchemaVersion() (int, error) {
	state, version, err := db.classifyVersionRecord()
	if err != nil {
		return 0, err
	}

	switch state {
	case versionRecorded:
		return version, nil
	case versionCorrupted:
		db.logger.Warn("corrupted schema_version table detected, rebuilding")
		if _, err := db.Exec("DROP TABLE schema_version"); err != nil {
			return 0, fmt.Errorf("failed to drop corrupted schema_version table: %w", err)
		}
		fallthrough
	default:
		// No usable version record: infer v1 if entity tables already exist
		exists, err := db.entityTablesExist()
		if err != nil {
			return 0, err
		}
		if exists {
			return 1, nil
		}
		return 0, nil
	}
}

func (db *DB) classifyVersionRecord() (versionState, int, error) {
	var name string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&name)
	if err == sql.ErrNoRows {
		return versionEmpty, 0, nil
	}
	if err != nil {
		return versionEmpty, 0, err
	}

	hasVersion, err := db.columnExists("schema_version", "version")
	if err != nil {
		return versionEmpty, 0, err
	}
	if !hasVersion {
		return versionCorrupted, 0, nil
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY id DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return versionEmpty, 0, nil
	}
	if err != nil {
		return versionEmpty, 0, err
	}
	return versionRecorded, version, nil
}

// entityTablesExist reports whether the core entity tables are present,
// which marks a pre-versioning database.
func (db *DB) entityTablesExist() (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('posts', 'users')
	`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// columnExists probes a table's columns via PRAGMA table_info.
// Used as the idempotence check before ALTER TABLE in migrations.
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// initializeSchema creates all tables for a new database at the current version
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		for _, create := range []func(*sql.Tx) error{
			createUsersTable,
			createUploadsTable,
			createPostsTable,
			createAnnotationTables,
			createFeedbackTable,
			createTranscriptionsTable,
			createTagRegistryTable,
		} {
			if err := create(tx); err != nil {
				return err
			}
		}
		if err := recordSchemaVersion(tx, currentSchemaVersion, "initial schema"); err != nil {
			return err
		}

		db.logger.Info("database schema initialized", zap.Int("version", currentSchemaVersion))
		return nil
	})
}

// runMigrations applies pending migration steps in order, recording the new
// version after each step so a crash resumes where it left off.
func (db *DB) runMigrations(from int) error {
	if from < 2 {
		db.logger.Info("running migration", zap.String("step", "v1->v2 feedback user attribution"))
		if err := db.migrateV1toV2(); err != nil {
			return fmt.Errorf("migration v1->v2 failed: %w", err)
		}
	}
	if from < 3 {
		db.logger.Info("running migration", zap.String("step", "v2->v3 upload status timestamps"))
		if err := db.migrateV2toV3(); err != nil {
			return fmt.Errorf("migration v2->v3 failed: %w", err)
		}
	}
	return nil
}

// migrateV1toV2 adds user attribution to inference_feedback.
// Existing feedback rows are assigned to the admin account.
func (db *DB) migrateV1toV2() error {
	return db.WithTx(func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRow(`
			SELECT name FROM sqlite_master
			WHERE type='table' AND name='inference_feedback'
		`).Scan(&name)

		switch {
		case err == sql.ErrNoRows:
			if err := createFeedbackTable(tx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			hasUserID, probeErr := columnExistsTx(tx, "inference_feedback", "user_id")
			if probeErr != nil {
				return probeErr
			}
			if !hasUserID {
				if _, err := tx.Exec("ALTER TABLE inference_feedback ADD COLUMN user_id INTEGER"); err != nil {
					return err
				}
				if _, err := tx.Exec("UPDATE inference_feedback SET user_id = 1 WHERE user_id IS NULL"); err != nil {
					return err
				}
			}
		}

		if err := ensureSchemaVersionTable(tx); err != nil {
			return err
		}
		return recordSchemaVersion(tx, 2, "feedback user attribution")
	})
}

// migrateV2toV3 adds the status transition timestamp to uploads
func (db *DB) migrateV2toV3() error {
	return db.WithTx(func(tx *sql.Tx) error {
		hasColumn, err := columnExistsTx(tx, "uploads", "status_changed_at")
		if err != nil {
			return err
		}
		if !hasColumn {
			if _, err := tx.Exec("ALTER TABLE uploads ADD COLUMN status_changed_at TIMESTAMP"); err != nil {
				return err
			}
		}
		if err := ensureSchemaVersionTable(tx); err != nil {
			return err
		}
		return recordSchemaVersion(tx, 3, "upload status timestamps")
	})
}

func columnExistsTx(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func ensureSchemaVersionTable(tx *sql.Tx) error {
	return createSchemaVersionTable(tx)
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`)
	return err
}

func recordSchemaVersion(tx *sql.Tx, version int, description string) error {
	_, err := tx.Exec(`
		INSERT INTO schema_version (version, description) VALUES (?, ?)
	`, version, description)
	return err
}

func createUsersTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)")
	return err
}

func createUploadsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			user_readable_name TEXT NOT NULL,
			comment TEXT,
			uploaded_by INTEGER,
			upload_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			records_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'archived', 'deleted')),
			status_changed_at TIMESTAMP,
			upload_type TEXT NOT NULL DEFAULT 'forum_data' CHECK(upload_type IN ('forum_data', 'transcription_data')),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (uploaded_by) REFERENCES users(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create uploads table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_by ON uploads(uploaded_by)",
		"CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status)",
		"CREATE INDEX IF NOT EXISTS idx_uploads_type ON uploads(upload_type)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createPostsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			post_id INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			forum TEXT NOT NULL,
			post_type TEXT,
			username TEXT,
			original_title TEXT,
			original_post TEXT,
			post_url TEXT,
			llm_inferred_question TEXT,
			llm_cluster_name TEXT,
			cluster INTEGER,
			cluster_label TEXT,
			date_posted TIMESTAMP,
			umap_1 REAL,
			umap_2 REAL,
			umap_3 REAL,
			upload_id INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (upload_id) REFERENCES uploads(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create posts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_posts_id ON posts(id)",
		"CREATE INDEX IF NOT EXISTS idx_posts_forum ON posts(forum)",
		"CREATE INDEX IF NOT EXISTS idx_posts_cluster ON posts(cluster)",
		"CREATE INDEX IF NOT EXISTS idx_posts_upload_id ON posts(upload_id)",
		"CREATE INDEX IF NOT EXISTS idx_posts_title ON posts(original_title)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createAnnotationTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS ai_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			question_text TEXT,
			confidence_score REAL,
			model_version TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ai_questions table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS ai_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			category_type TEXT NOT NULL,
			category_value TEXT NOT NULL,
			confidence_score REAL,
			model_version TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ai_categories table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS users_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			question_id TEXT NOT NULL,
			question_text TEXT,
			notes_text TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(post_id, question_id),
			FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users_questions table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS users_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			note_id TEXT NOT NULL,
			notes_text TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(post_id, note_id),
			FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users_categories table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ai_questions_post_id ON ai_questions(post_id)",
		"CREATE INDEX IF NOT EXISTS idx_ai_categories_post_id ON ai_categories(post_id)",
		"CREATE INDEX IF NOT EXISTS idx_ai_categories_type ON ai_categories(category_type)",
		"CREATE INDEX IF NOT EXISTS idx_users_questions_post_id ON users_questions(post_id)",
		"CREATE INDEX IF NOT EXISTS idx_users_categories_post_id ON users_categories(post_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createFeedbackTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS inference_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			inference_type TEXT NOT NULL,
			rating TEXT,
			feedback_text TEXT,
			response_id TEXT NOT NULL,
			user_id INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(post_id, inference_type, response_id),
			FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create inference_feedback table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_inference_feedback_post_id ON inference_feedback(post_id)",
		"CREATE INDEX IF NOT EXISTS idx_inference_feedback_type ON inference_feedback(inference_type)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createTranscriptionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS transcriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			upload_id INTEGER NOT NULL,
			session_id TEXT,
			participant_id TEXT,
			session_date TIMESTAMP,
			session_duration INTEGER,
			transcription_text TEXT,
			zoom_ease INTEGER,
			poll_usability INTEGER,
			resource_access INTEGER,
			presession_anxiety INTEGER,
			reassurance_provided INTEGER,
			info_useful INTEGER,
			info_missing INTEGER,
			info_takeaway_desired INTEGER,
			exercise_engaged INTEGER,
			lifestyle_change INTEGER,
			postop_adherence INTEGER,
			family_involved INTEGER,
			support_needed INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (upload_id) REFERENCES uploads(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcriptions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcriptions_upload_id ON transcriptions(upload_id)",
		"CREATE INDEX IF NOT EXISTS idx_transcriptions_session ON transcriptions(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_transcriptions_participant ON transcriptions(participant_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createTagRegistryTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tag_registry (
			tag_type TEXT NOT NULL,
			tag_value TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tag_type, tag_value)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tag_registry table: %w", err)
	}
	return nil
}
