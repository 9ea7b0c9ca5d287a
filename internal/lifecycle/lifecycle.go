package lifecycle

import (
	"go.uber.org/zap"

	"mrpc/internal/access"
	"mrpc/internal/errors"
	"mrpc/internal/storage"
)

// Controller enforces the upload lifecycle:
//
//	active -> archived -> deleted -> purged
//
// with restore as the only backward edge (archived -> active). Owners drive
// every transition except purge, which is reserved for the administrator.
type Controller struct {
	uploads *storage.UploadRepository
	access  *access.Service
	logger  *zap.Logger
}

// NewController creates a new lifecycle controller
func NewController(uploads *storage.UploadRepository, accessSvc *access.Service, logger *zap.Logger) *Controller {
	return &Controller{uploads: uploads, access: accessSvc, logger: logger}
}

// Archive moves an active upload to archived
func (c *Controller) Archive(identity access.Identity, uploadID int64) error {
	return c.transition(identity, uploadID, "archive", storage.UploadStatusActive, storage.UploadStatusArchived)
}

// Restore moves an archived upload back to active
func (c *Controller) Restore(identity access.Identity, uploadID int64) error {
	return c.transition(identity, uploadID, "restore", storage.UploadStatusArchived, storage.UploadStatusActive)
}

// SoftDelete moves an archived upload to deleted. Active uploads must be
// archived first.
func (c *Controller) SoftDelete(identity access.Identity, uploadID int64) error {
	return c.transition(identity, uploadID, "delete", storage.UploadStatusArchived, storage.UploadStatusDeleted)
}

// Purge permanently removes a deleted upload and everything attached to it.
// Administrator only.
func (c *Controller) Purge(identity access.Identity, uploadID int64) error {
	if err := c.access.RequireAdmin(identity); err != nil {
		return err
	}

	upload, err := c.uploads.GetByID(uploadID)
	if err != nil {
		return errors.Wrap(errors.StoreError, "failed to load upload", err)
	}
	if upload == nil {
		return errors.Newf(errors.NotFound, "upload %d not found", uploadID)
	}
	if upload.Status != storage.UploadStatusDeleted {
		return errors.Newf(errors.StateInvalid,
			"cannot purge upload %d: status is %s, must be %s first",
			uploadID, upload.Status, storage.UploadStatusDeleted)
	}

	if err := c.uploads.Purge(uploadID); err != nil {
		return errors.Wrap(errors.StoreError, "failed to purge upload", err)
	}

	c.logger.Info("upload purged",
		zap.Int64("upload_id", uploadID),
		zap.Int64("by_user", identity.UserID))
	return nil
}

func (c *Controller) transition(identity access.Identity, uploadID int64, verb, from, to string) error {
	if identity.IsZero() {
		return errors.Newf(errors.Unauthorized, "%s requires an authenticated user", verb)
	}

	upload, err := c.uploads.GetByID(uploadID)
	if err != nil {
		return errors.Wrap(errors.StoreError, "failed to load upload", err)
	}
	if upload == nil {
		return errors.Newf(errors.NotFound, "upload %d not found", uploadID)
	}
	if upload.UploadedBy != identity.UserID {
		return errors.Newf(errors.Unauthorized,
			"user %d does not own upload %d", identity.UserID, uploadID)
	}
	if upload.Status != from {
		return errors.Newf(errors.StateInvalid,
			"cannot %s upload %d: status is %s, must be %s",
			verb, uploadID, upload.Status, from)
	}

	if err := c.uploads.UpdateStatus(uploadID, to); err != nil {
		return errors.Wrap(errors.StoreError, "failed to update upload status", err)
	}

	c.logger.Info("upload status changed",
		zap.Int64("upload_id", uploadID),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int64("by_user", identity.UserID))
	return nil
}
