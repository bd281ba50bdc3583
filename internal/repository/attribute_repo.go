package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/labels"
	"github.com/yuriguchi/testy/internal/model"
)

// AttributeRepository handles custom attribute definitions.
type AttributeRepository struct {
	db *sqlx.DB
}

// NewAttributeRepository creates a new attribute repository.
func NewAttributeRepository(db *sqlx.DB) *AttributeRepository {
	return &AttributeRepository{db: db}
}

type dbAttribute struct {
	ID        int64  `db:"id"`
	ProjectID int64  `db:"project_id"`
	Name      string `db:"name"`
	Type      string `db:"type"`
	AppliedTo []byte `db:"applied_to"`
}

func (a *dbAttribute) toModel() *model.CustomAttribute {
	out := &model.CustomAttribute{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		Name:      a.Name,
		Type:      model.AttributeType(a.Type),
	}
	if len(a.AppliedTo) > 0 {
		json.Unmarshal(a.AppliedTo, &out.AppliedTo)
	}
	return out
}

const attributeColumns = `id, project_id, name, type, applied_to`

// Get retrieves a live attribute by id.
func (r *AttributeRepository) Get(ctx context.Context, id int64) (*model.CustomAttribute, error) {
	var a dbAttribute
	query := `SELECT ` + attributeColumns + ` FROM custom_attributes WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("custom attribute")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute: %w", err)
	}
	return a.toModel(), nil
}

// List retrieves a project's live attributes.
func (r *AttributeRepository) List(ctx context.Context, projectID int64) ([]*model.CustomAttribute, error) {
	var rows []dbAttribute
	query := `SELECT ` + attributeColumns + ` FROM custom_attributes WHERE project_id = $1 AND NOT is_deleted ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	attrs := make([]*model.CustomAttribute, len(rows))
	for i := range rows {
		attrs[i] = rows[i].toModel()
	}
	return attrs, nil
}

// Create inserts an attribute, enforcing case-insensitive per-project name
// uniqueness.
func (r *AttributeRepository) Create(ctx context.Context, a *model.CustomAttribute) error {
	if err := r.checkUnique(ctx, a.ProjectID, a.Name, 0); err != nil {
		return err
	}
	appliedTo, err := marshalJSON(a.AppliedTo)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO custom_attributes (project_id, name, type, applied_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	row := r.db.QueryRowxContext(ctx, query, a.ProjectID, a.Name, string(a.Type), appliedTo)
	if err := row.Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to create attribute: %w", err)
	}
	return nil
}

// Update persists an attribute definition.
func (r *AttributeRepository) Update(ctx context.Context, a *model.CustomAttribute) error {
	if err := r.checkUnique(ctx, a.ProjectID, a.Name, a.ID); err != nil {
		return err
	}
	appliedTo, err := marshalJSON(a.AppliedTo)
	if err != nil {
		return err
	}
	query := `
		UPDATE custom_attributes SET name = $1, type = $2, applied_to = $3
		WHERE id = $4 AND NOT is_deleted
	`
	result, err := r.db.ExecContext(ctx, query, a.Name, string(a.Type), appliedTo, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update attribute: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("custom attribute")
	}
	return nil
}

// Delete soft-deletes an attribute definition. Stored values on entities are
// left in place.
func (r *AttributeRepository) Delete(ctx context.Context, id int64) error {
	query := `UPDATE custom_attributes SET is_deleted = true, deleted_at = now() WHERE id = $1 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete attribute: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("custom attribute")
	}
	return nil
}

func (r *AttributeRepository) checkUnique(ctx context.Context, projectID int64, name string, selfID int64) error {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM custom_attributes
			WHERE project_id = $1 AND lower(name) = $2 AND id <> $3 AND NOT is_deleted
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, projectID, labels.NormalizeName(name), selfID); err != nil {
		return fmt.Errorf("failed to check attribute uniqueness: %w", err)
	}
	if exists {
		return apperr.New(apperr.CodeDuplicateAttribute, "attribute name already in use")
	}
	return nil
}
