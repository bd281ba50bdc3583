package service

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/storage"
)

// AttachmentService implements attachment upload, download and binding.
type AttachmentService struct {
	db          *sqlx.DB
	attachments *repository.AttachmentRepository
	blobs       *storage.S3Store
	logger      *slog.Logger
}

// NewAttachmentService creates an attachment service. A nil blob store
// degrades to metadata-only mode; uploads are then rejected.
func NewAttachmentService(db *sqlx.DB, attachments *repository.AttachmentRepository,
	blobs *storage.S3Store, logger *slog.Logger) *AttachmentService {
	return &AttachmentService{db: db, attachments: attachments, blobs: blobs, logger: logger}
}

// Upload stores the file bytes and creates the metadata row. The attachment
// starts unbound; a later entity write binds it.
func (s *AttachmentService) Upload(ctx context.Context, userID, projectID int64,
	filename, mimeType, comment string, size int64, body io.Reader) (*model.Attachment, error) {
	if s.blobs == nil {
		return nil, apperr.New(apperr.CodeServiceUnavail, "object storage is not configured")
	}
	if strings.TrimSpace(filename) == "" {
		return nil, apperr.Validation("filename is required")
	}

	a := &model.Attachment{
		ProjectID: projectID,
		Filename:  filename,
		MimeType:  mimeType,
		Comment:   comment,
		Size:      size,
		UserID:    userID,
	}
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.attachments.Create(ctx, tx, a); err != nil {
			return err
		}
		a.FileKey = s.blobs.Key(a.ID, filename)
		if err := s.blobs.Put(ctx, a.FileKey, body, size, mimeType); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE attachments SET file_key = $1 WHERE id = $2`, a.FileKey, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("attachment uploaded", "attachment_id", a.ID, "project_id", projectID, "size", size)
	return a, nil
}

// Get retrieves attachment metadata.
func (s *AttachmentService) Get(ctx context.Context, id int64) (*model.Attachment, error) {
	return s.attachments.Get(ctx, id)
}

// Download streams the attachment's bytes.
func (s *AttachmentService) Download(ctx context.Context, id int64) (*model.Attachment, io.ReadCloser, error) {
	a, err := s.attachments.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.blobs == nil {
		return nil, nil, apperr.New(apperr.CodeServiceUnavail, "object storage is not configured")
	}
	body, err := s.blobs.Get(ctx, a.FileKey)
	if err != nil {
		return nil, nil, err
	}
	return a, body, nil
}

// ListForObject retrieves the attachments bound to one target.
func (s *AttachmentService) ListForObject(ctx context.Context, kind model.EntityKind, objectID int64) ([]*model.Attachment, error) {
	return s.attachments.ListForObject(ctx, kind, objectID)
}
