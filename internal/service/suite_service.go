// Package service implements the domain operations on top of the
// repositories, history store, cascade engine and supporting infrastructure.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/tree"
)

// SuiteService implements suite CRUD and tree navigation.
type SuiteService struct {
	db       *sqlx.DB
	suites   *repository.SuiteRepository
	cases    *repository.CaseRepository
	projects *repository.ProjectRepository
	index    *tree.Index
	logger   *slog.Logger
}

// NewSuiteService creates a suite service.
func NewSuiteService(db *sqlx.DB, suites *repository.SuiteRepository, cases *repository.CaseRepository,
	projects *repository.ProjectRepository, logger *slog.Logger) *SuiteService {
	return &SuiteService{
		db:       db,
		suites:   suites,
		cases:    cases,
		projects: projects,
		index:    tree.NewIndex(db, "testsuites"),
		logger:   logger,
	}
}

// Create validates and inserts a suite.
func (s *SuiteService) Create(ctx context.Context, req model.CreateSuiteRequest) (*model.Suite, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	suite := &model.Suite{
		ProjectID:   req.ProjectID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
	}
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.suites.Create(ctx, tx, suite); err != nil {
			return err
		}
		return s.projects.Recount(ctx, tx, suite.ProjectID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("suite created", "suite_id", suite.ID, "project_id", suite.ProjectID)
	return suite, nil
}

// Get retrieves one suite.
func (s *SuiteService) Get(ctx context.Context, id int64) (*model.Suite, error) {
	return s.suites.Get(ctx, id)
}

// Update applies a partial update. A parent change moves the whole subtree.
func (s *SuiteService) Update(ctx context.Context, id int64, req model.UpdateSuiteRequest) (*model.Suite, error) {
	suite, err := s.suites.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name cannot be blank")
		}
		suite.Name = *req.Name
	}
	if req.Description != nil {
		suite.Description = *req.Description
	}

	moved := req.ParentID != nil && (suite.ParentID == nil || *req.ParentID != *suite.ParentID)
	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.suites.Update(ctx, tx, suite); err != nil {
			return err
		}
		if moved {
			if err := s.index.Reparent(ctx, tx, id, req.ParentID); err != nil {
				return err
			}
			suite.ParentID = req.ParentID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suite, nil
}

// List retrieves suites matching the filter.
func (s *SuiteService) List(ctx context.Context, f model.ListFilter) ([]*model.Suite, error) {
	return s.suites.List(ctx, f)
}

// Breadcrumbs returns the root→suite ancestor chain.
func (s *SuiteService) Breadcrumbs(ctx context.Context, id int64) ([]tree.Breadcrumb, error) {
	return s.index.Breadcrumbs(ctx, id)
}

// DescendantsTree returns the subtree rooted at id as nested nodes with the
// live cases of each suite attached.
func (s *SuiteService) DescendantsTree(ctx context.Context, id int64) (*model.SuiteTreeNode, error) {
	nodes, err := s.index.Descendants(ctx, id, true)
	if err != nil {
		return nil, err
	}
	suiteIDs := make([]int64, len(nodes))
	for i, n := range nodes {
		suiteIDs[i] = n.ID
	}
	root, err := s.buildTree(ctx, nodes, suiteIDs, nil)
	if err != nil {
		return nil, err
	}
	if len(root) == 0 {
		return nil, apperr.NotFound("suite")
	}
	return root[0], nil
}

// ProjectTree returns every suite tree of a project as a forest, cases
// attached, optionally pruned by a tree search term.
//
// A search term keeps the suites whose name matches, the suites owning a
// matching case, and every ancestor of a kept node.
func (s *SuiteService) ProjectTree(ctx context.Context, projectID int64, search string) ([]*model.SuiteTreeNode, error) {
	suites, err := s.suites.List(ctx, model.ListFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	nodes := make([]*tree.Node, len(suites))
	suiteIDs := make([]int64, len(suites))
	for i, su := range suites {
		nodes[i] = &tree.Node{
			ID: su.ID, ProjectID: su.ProjectID, ParentID: su.ParentID,
			Name: su.Name, TreeID: su.TreeID, Path: su.Path,
		}
		suiteIDs[i] = su.ID
	}

	var keep map[int64]bool
	if search != "" {
		keep, err = s.searchMatches(ctx, projectID, nodes, search)
		if err != nil {
			return nil, err
		}
	}
	return s.buildTree(ctx, nodes, suiteIDs, keep)
}

// searchMatches computes the kept suite set for a tree search: matching
// suites, suites with matching cases, and all their ancestors.
func (s *SuiteService) searchMatches(ctx context.Context, projectID int64, nodes []*tree.Node, search string) (map[int64]bool, error) {
	matched := make(map[int64]bool)
	term := strings.ToLower(search)
	byID := make(map[int64]*tree.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		if strings.Contains(strings.ToLower(n.Name), term) {
			matched[n.ID] = true
		}
	}

	cases, err := s.cases.List(ctx, model.ListFilter{ProjectID: projectID, Search: search}, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range cases {
		matched[c.SuiteID] = true
	}

	// Keep ancestors of every match.
	keep := make(map[int64]bool, len(matched))
	for id := range matched {
		n := byID[id]
		if n == nil {
			continue
		}
		for _, ancestorID := range tree.ChainIDs(n.Path) {
			keep[ancestorID] = true
		}
	}
	return keep, nil
}

// buildTree assembles nested nodes from the flat depth-first node list and
// attaches each suite's cases. A non-nil keep set prunes everything else.
func (s *SuiteService) buildTree(ctx context.Context, nodes []*tree.Node, suiteIDs []int64, keep map[int64]bool) ([]*model.SuiteTreeNode, error) {
	casesBySuite := make(map[int64][]*model.Case)
	if len(suiteIDs) > 0 {
		var projectID int64
		for _, n := range nodes {
			projectID = n.ProjectID
			break
		}
		cases, err := s.cases.List(ctx, model.ListFilter{ProjectID: projectID}, suiteIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range cases {
			casesBySuite[c.SuiteID] = append(casesBySuite[c.SuiteID], c)
		}
	}

	byID := make(map[int64]*model.SuiteTreeNode, len(nodes))
	var roots []*model.SuiteTreeNode
	for _, n := range nodes {
		if keep != nil && !keep[n.ID] {
			continue
		}
		tn := &model.SuiteTreeNode{
			Suite: model.Suite{
				ID: n.ID, ProjectID: n.ProjectID, ParentID: n.ParentID,
				Name: n.Name, TreeID: n.TreeID, Path: n.Path,
			},
			Children:  []*model.SuiteTreeNode{},
			TestCases: casesBySuite[n.ID],
		}
		if tn.TestCases == nil {
			tn.TestCases = []*model.Case{}
		}
		byID[n.ID] = tn
		if n.ParentID != nil {
			if parent, ok := byID[*n.ParentID]; ok {
				parent.Children = append(parent.Children, tn)
				continue
			}
		}
		roots = append(roots, tn)
	}
	return roots, nil
}
