package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// LabelService implements label CRUD. Attachment to targets happens inside
// the owning services (cases, plans) so the version pin stays correct.
type LabelService struct {
	db     *sqlx.DB
	labels *repository.LabelRepository
	logger *slog.Logger
}

// NewLabelService creates a label service.
func NewLabelService(db *sqlx.DB, labels *repository.LabelRepository, logger *slog.Logger) *LabelService {
	return &LabelService{db: db, labels: labels, logger: logger}
}

// List retrieves a project's labels.
func (s *LabelService) List(ctx context.Context, projectID int64) ([]*model.Label, error) {
	return s.labels.List(ctx, projectID)
}

// Get retrieves one label.
func (s *LabelService) Get(ctx context.Context, id int64) (*model.Label, error) {
	return s.labels.Get(ctx, id)
}

// Create resolves or creates a label by name inside the project.
func (s *LabelService) Create(ctx context.Context, projectID, userID int64, name string) (*model.Label, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("name is required")
	}
	var label *model.Label
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		label, err = s.labels.GetOrCreate(ctx, tx, projectID, name, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

// Update renames a label.
func (s *LabelService) Update(ctx context.Context, id int64, name string) (*model.Label, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("name cannot be blank")
	}
	label, err := s.labels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	label.Name = name
	if err := s.labels.Update(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}
