package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// AttachmentRepository handles attachment metadata. File bytes live in the
// blob store under FileKey.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository creates a new attachment repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

type dbAttachment struct {
	ID          int64          `db:"id"`
	ProjectID   int64          `db:"project_id"`
	ContentType sql.NullString `db:"content_type"`
	ObjectID    sql.NullInt64  `db:"object_id"`
	FileKey     string         `db:"file_key"`
	Size        int64          `db:"size"`
	Filename    string         `db:"filename"`
	MimeType    string         `db:"mime_type"`
	Comment     string         `db:"comment"`
	UserID      int64          `db:"user_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (a *dbAttachment) toModel() *model.Attachment {
	out := &model.Attachment{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		ObjectID:  intPtr(a.ObjectID),
		FileKey:   a.FileKey,
		Size:      a.Size,
		Filename:  a.Filename,
		MimeType:  a.MimeType,
		Comment:   a.Comment,
		UserID:    a.UserID,
		CreatedAt: a.CreatedAt,
	}
	if a.ContentType.Valid {
		out.ContentType = model.EntityKind(a.ContentType.String)
	}
	return out
}

const attachmentColumns = `id, project_id, content_type, object_id, file_key, size,
	filename, mime_type, comment, user_id, created_at`

// Create inserts attachment metadata. A nil ObjectID leaves the attachment
// unbound until a later bind.
func (r *AttachmentRepository) Create(ctx context.Context, q sqlx.ExtContext, a *model.Attachment) error {
	var contentType interface{}
	if a.ContentType != "" {
		contentType = string(a.ContentType)
	}
	query := `
		INSERT INTO attachments (project_id, content_type, object_id, file_key, size,
			filename, mime_type, comment, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id, created_at
	`
	rowx := q.QueryRowxContext(ctx, query,
		a.ProjectID, contentType, nullInt(a.ObjectID), a.FileKey, a.Size,
		a.Filename, a.MimeType, a.Comment, a.UserID)
	if err := rowx.Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// Get retrieves live attachment metadata by id.
func (r *AttachmentRepository) Get(ctx context.Context, id int64) (*model.Attachment, error) {
	var a dbAttachment
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("attachment")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a.toModel(), nil
}

// ListByIDs retrieves live attachments by id.
func (r *AttachmentRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []dbAttachment
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = ANY($1) AND NOT is_deleted ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	attachments := make([]*model.Attachment, len(rows))
	for i := range rows {
		attachments[i] = rows[i].toModel()
	}
	return attachments, nil
}

// ListForObject retrieves the live attachments bound to one target.
func (r *AttachmentRepository) ListForObject(ctx context.Context, kind model.EntityKind, objectID int64) ([]*model.Attachment, error) {
	var rows []dbAttachment
	query := `
		SELECT ` + attachmentColumns + ` FROM attachments
		WHERE content_type = $1 AND object_id = $2 AND NOT is_deleted
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &rows, query, string(kind), objectID); err != nil {
		return nil, fmt.Errorf("failed to list object attachments: %w", err)
	}
	attachments := make([]*model.Attachment, len(rows))
	for i := range rows {
		attachments[i] = rows[i].toModel()
	}
	return attachments, nil
}

// Bind points an attachment at its owning row.
func (r *AttachmentRepository) Bind(ctx context.Context, q sqlx.ExtContext, id int64, kind model.EntityKind, objectID int64) error {
	query := `
		UPDATE attachments SET content_type = $1, object_id = $2
		WHERE id = $3 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query, string(kind), objectID, id)
	if err != nil {
		return fmt.Errorf("failed to bind attachment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("attachment")
	}
	return nil
}
