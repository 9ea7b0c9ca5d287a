package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mrpc/internal/access"
	"mrpc/internal/aggregate"
	"mrpc/internal/auth"
	"mrpc/internal/config"
	"mrpc/internal/ingest"
	"mrpc/internal/lifecycle"
	"mrpc/internal/logging"
	"mrpc/internal/storage"
	"mrpc/internal/version"
)

var (
	// userFlag is the acting user id for commands that need an identity
	userFlag int64
)

var rootCmd = &cobra.Command{
	Use:   "mrpc",
	Short: "MRPC - multi-user forum and session data store",
	Long: `MRPC manages forum posts and experimental-session records in an embedded
SQLite store: CSV ingestion with type detection and duplicate suppression,
per-user access control, an upload lifecycle, and per-title aggregation.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("MRPC version {{.Version}}\n")
	rootCmd.PersistentFlags().Int64Var(&userFlag, "user", 0,
		"Acting user id (required for uploads and lifecycle operations)")
}

// app wires the configuration, store, and services for one command run
type app struct {
	root      string
	cfg       *config.Config
	logger    *zap.Logger
	db        *storage.DB
	posts     *storage.PostRepository
	notes     *storage.AnnotationRepository
	feedback  *storage.FeedbackRepository
	uploads   *storage.UploadRepository
	sessions  *storage.TranscriptionRepository
	users     *auth.UserStore
	access    *access.Service
	pipeline  *ingest.Pipeline
	lifecycle *lifecycle.Controller
	aggregate *aggregate.Engine
}

// openApp loads configuration from the working directory and opens the
// store, running any pending migrations.
func openApp() (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DatabasePath(root), logger)
	if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, logger: logger, db: db}
	a.posts = storage.NewPostRepository(db)
	a.notes = storage.NewAnnotationRepository(db, a.posts)
	a.feedback = storage.NewFeedbackRepository(db, a.posts)
	a.uploads = storage.NewUploadRepository(db)
	a.sessions = storage.NewTranscriptionRepository(db)
	a.users = auth.NewUserStore(db, logger)
	a.access = access.NewService(db, cfg.Auth.AdminUserID, logger)
	a.pipeline = ingest.NewPipeline(db, a.posts, a.notes, a.uploads, a.sessions, logger)
	a.lifecycle = lifecycle.NewController(a.uploads, a.access, logger)
	a.aggregate = aggregate.NewEngine(db, a.access, logger)
	return a, nil
}

// identity builds the acting identity from the --user flag
func (a *app) identity() access.Identity {
	return access.Identity{UserID: userFlag}
}

// close releases the store and flushes the logger
func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
