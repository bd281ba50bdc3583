package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// StatusService implements the result status catalog.
type StatusService struct {
	statuses *repository.StatusRepository
	logger   *slog.Logger
}

// NewStatusService creates a status service.
func NewStatusService(statuses *repository.StatusRepository, logger *slog.Logger) *StatusService {
	return &StatusService{statuses: statuses, logger: logger}
}

// Catalog returns the statuses usable in a project, the synthetic Untested
// status included.
func (s *StatusService) Catalog(ctx context.Context, projectID int64) ([]*model.ResultStatus, error) {
	statuses, err := s.statuses.Catalog(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return append([]*model.ResultStatus{model.UntestedStatus()}, statuses...), nil
}

// Create validates and inserts a status. SYSTEM statuses must not carry a
// project, CUSTOM statuses must.
func (s *StatusService) Create(ctx context.Context, req model.CreateStatusRequest) (*model.ResultStatus, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	switch req.Type {
	case model.StatusTypeSystem:
		if req.ProjectID != nil {
			return nil, apperr.New(apperr.CodeSystemStatusProject, "a system status cannot belong to a project")
		}
	case model.StatusTypeCustom:
		if req.ProjectID == nil {
			return nil, apperr.New(apperr.CodeCustomStatusNoProject, "a custom status requires a project")
		}
	default:
		return nil, apperr.Validation("unknown status type")
	}

	st := &model.ResultStatus{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Color:     req.Color,
		Type:      req.Type,
	}
	if err := s.statuses.Create(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Update renames or recolors a status. Type is immutable.
func (s *StatusService) Update(ctx context.Context, id int64, req model.UpdateStatusRequest) (*model.ResultStatus, error) {
	st, err := s.statuses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.ID == model.UntestedStatusID {
		return nil, apperr.New(apperr.CodeStatusTypeImmutable, "the untested status cannot be changed")
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name cannot be blank")
		}
		st.Name = *req.Name
	}
	if req.Color != nil {
		st.Color = *req.Color
	}
	if err := s.statuses.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Delete removes a CUSTOM status. Existing results keep the stale id.
func (s *StatusService) Delete(ctx context.Context, id int64) error {
	if id == model.UntestedStatusID {
		return apperr.New(apperr.CodeStatusTypeImmutable, "the untested status cannot be deleted")
	}
	return s.statuses.Delete(ctx, id)
}

// seedCatalog is the statuses.yaml document shape.
type seedCatalog struct {
	Statuses []struct {
		Name  string `yaml:"name"`
		Color string `yaml:"color"`
	} `yaml:"statuses"`
}

// SeedFromFile loads the SYSTEM status catalog from a YAML file and inserts
// the missing entries. A missing file is not an error; the instance then
// starts with whatever statuses storage already holds.
func (s *StatusService) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Warn("status seed file missing, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read status seed file: %w", err)
	}
	var catalog seedCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("failed to parse status seed file: %w", err)
	}

	statuses := make([]*model.ResultStatus, 0, len(catalog.Statuses))
	for _, entry := range catalog.Statuses {
		if strings.TrimSpace(entry.Name) == "" {
			continue
		}
		statuses = append(statuses, &model.ResultStatus{
			Name:  entry.Name,
			Color: entry.Color,
			Type:  model.StatusTypeSystem,
		})
	}
	if err := s.statuses.SeedSystem(ctx, statuses); err != nil {
		return err
	}
	s.logger.Info("system statuses seeded", "count", len(statuses))
	return nil
}
