package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// AttributeService implements custom attribute definitions.
type AttributeService struct {
	attrs  *repository.AttributeRepository
	logger *slog.Logger
}

// NewAttributeService creates an attribute service.
func NewAttributeService(attrs *repository.AttributeRepository, logger *slog.Logger) *AttributeService {
	return &AttributeService{attrs: attrs, logger: logger}
}

// List retrieves a project's attribute definitions.
func (s *AttributeService) List(ctx context.Context, projectID int64) ([]*model.CustomAttribute, error) {
	return s.attrs.List(ctx, projectID)
}

// Get retrieves one attribute definition.
func (s *AttributeService) Get(ctx context.Context, id int64) (*model.CustomAttribute, error) {
	return s.attrs.Get(ctx, id)
}

// Create validates and inserts an attribute definition.
func (s *AttributeService) Create(ctx context.Context, req model.CreateAttributeRequest) (*model.CustomAttribute, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := validateAttributeTargets(req.AppliedTo); err != nil {
		return nil, err
	}
	attr := &model.CustomAttribute{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Type:      req.Type,
		AppliedTo: req.AppliedTo,
	}
	if attr.Type == "" {
		attr.Type = model.AttributeTypeText
	}
	if err := s.attrs.Create(ctx, attr); err != nil {
		return nil, err
	}
	return attr, nil
}

// Update applies a partial attribute update.
func (s *AttributeService) Update(ctx context.Context, id int64, req model.UpdateAttributeRequest) (*model.CustomAttribute, error) {
	attr, err := s.attrs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name cannot be blank")
		}
		attr.Name = *req.Name
	}
	if req.Type != nil {
		attr.Type = *req.Type
	}
	if req.AppliedTo != nil {
		if err := validateAttributeTargets(req.AppliedTo); err != nil {
			return nil, err
		}
		attr.AppliedTo = req.AppliedTo
	}
	if err := s.attrs.Update(ctx, attr); err != nil {
		return nil, err
	}
	return attr, nil
}

// Delete removes an attribute definition. Values already stored on entities
// stay in place.
func (s *AttributeService) Delete(ctx context.Context, id int64) error {
	return s.attrs.Delete(ctx, id)
}

var attributeTargets = map[model.EntityKind]bool{
	model.KindCase:   true,
	model.KindPlan:   true,
	model.KindResult: true,
}

func validateAttributeTargets(appliedTo map[model.EntityKind]model.AttributePolicy) error {
	for kind, policy := range appliedTo {
		if !attributeTargets[kind] {
			return apperr.Validation("attributes can only target test cases, plans and results")
		}
		if len(policy.StatusSpecific) > 0 && kind != model.KindResult {
			return apperr.Validation("status-specific requirements only apply to results")
		}
		if len(policy.SuiteIDs) > 0 && kind != model.KindCase {
			return apperr.Validation("suite scoping only applies to test cases")
		}
	}
	return nil
}
