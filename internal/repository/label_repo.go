package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/labels"
	"github.com/yuriguchi/testy/internal/model"
)

// LabelRepository handles labels and the generic labeled_items association.
type LabelRepository struct {
	db *sqlx.DB
}

// NewLabelRepository creates a new label repository.
func NewLabelRepository(db *sqlx.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

const labelColumns = `id, project_id, name, user_id, type`

// Get retrieves a live label by id.
func (r *LabelRepository) Get(ctx context.Context, id int64) (*model.Label, error) {
	var l model.Label
	query := `SELECT ` + labelColumns + ` FROM labels WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &l, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("label")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return &l, nil
}

// List retrieves a project's live labels.
func (r *LabelRepository) List(ctx context.Context, projectID int64) ([]*model.Label, error) {
	var ls []*model.Label
	query := `SELECT ` + labelColumns + ` FROM labels WHERE project_id = $1 AND NOT is_deleted ORDER BY name`
	if err := r.db.SelectContext(ctx, &ls, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return ls, nil
}

// GetOrCreate resolves a label by normalized name inside a project, creating
// it when absent. Matching is case-insensitive.
func (r *LabelRepository) GetOrCreate(ctx context.Context, tx *sqlx.Tx, projectID int64, name string, userID int64) (*model.Label, error) {
	normalized := labels.NormalizeName(name)
	var l model.Label
	query := `
		SELECT ` + labelColumns + ` FROM labels
		WHERE project_id = $1 AND lower(name) = $2 AND NOT is_deleted
	`
	err := tx.GetContext(ctx, &l, query, projectID, normalized)
	if err == nil {
		return &l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve label: %w", err)
	}

	l = model.Label{ProjectID: projectID, Name: name, UserID: userID}
	insert := `
		INSERT INTO labels (project_id, name, user_id, type)
		VALUES ($1, $2, $3, 0)
		RETURNING id
	`
	row := tx.QueryRowxContext(ctx, insert, projectID, name, userID)
	if err := row.Scan(&l.ID); err != nil {
		return nil, fmt.Errorf("failed to create label: %w", err)
	}
	return &l, nil
}

// Update renames a label.
func (r *LabelRepository) Update(ctx context.Context, l *model.Label) error {
	query := `UPDATE labels SET name = $1 WHERE id = $2 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, l.Name, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update label: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("label")
	}
	return nil
}

// Attach replaces the target's label attachments with the given set, pinning
// the target's current history version.
func (r *LabelRepository) Attach(ctx context.Context, tx *sqlx.Tx, kind model.EntityKind, objectID int64, labelIDs []int64, historyID *int64) error {
	clear := `
		UPDATE labeled_items SET is_deleted = true, deleted_at = now()
		WHERE content_type = $1 AND object_id = $2 AND NOT is_deleted
	`
	if _, err := tx.ExecContext(ctx, clear, string(kind), objectID); err != nil {
		return fmt.Errorf("failed to clear label attachments: %w", err)
	}

	insert := `
		INSERT INTO labeled_items (label_id, content_type, object_id, content_object_history_id)
		VALUES ($1, $2, $3, $4)
	`
	for _, labelID := range labelIDs {
		if _, err := tx.ExecContext(ctx, insert, labelID, string(kind), objectID, nullInt(historyID)); err != nil {
			return fmt.Errorf("failed to attach label: %w", err)
		}
	}
	return nil
}

// AttachedLabels returns the live label ids per object id for one entity
// kind, for in-memory label filter evaluation.
func (r *LabelRepository) AttachedLabels(ctx context.Context, kind model.EntityKind, objectIDs []int64) (map[int64]map[int64]bool, error) {
	attached := make(map[int64]map[int64]bool, len(objectIDs))
	if len(objectIDs) == 0 {
		return attached, nil
	}
	var rows []struct {
		ObjectID int64 `db:"object_id"`
		LabelID  int64 `db:"label_id"`
	}
	query := `
		SELECT object_id, label_id FROM labeled_items
		WHERE content_type = $1 AND object_id = ANY($2) AND NOT is_deleted
	`
	if err := r.db.SelectContext(ctx, &rows, query, string(kind), int64Array(objectIDs)); err != nil {
		return nil, fmt.Errorf("failed to load label attachments: %w", err)
	}
	for _, row := range rows {
		if attached[row.ObjectID] == nil {
			attached[row.ObjectID] = make(map[int64]bool)
		}
		attached[row.ObjectID][row.LabelID] = true
	}
	return attached, nil
}

// ListForObject retrieves the labels attached to one target.
func (r *LabelRepository) ListForObject(ctx context.Context, kind model.EntityKind, objectID int64) ([]*model.Label, error) {
	var ls []*model.Label
	query := `
		SELECT l.id, l.project_id, l.name, l.user_id, l.type
		FROM labeled_items li
		JOIN labels l ON l.id = li.label_id AND NOT l.is_deleted
		WHERE li.content_type = $1 AND li.object_id = $2 AND NOT li.is_deleted
		ORDER BY l.name
	`
	if err := r.db.SelectContext(ctx, &ls, query, string(kind), objectID); err != nil {
		return nil, fmt.Errorf("failed to list object labels: %w", err)
	}
	return ls, nil
}
