package model

import "time"

// Suite is a node in the case-organization tree.
type Suite struct {
	ID          int64  `json:"id" db:"id"`
	ProjectID   int64  `json:"project" db:"project_id"`
	ParentID    *int64 `json:"parent" db:"parent_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	TreeID int64  `json:"-" db:"tree_id"`
	Path   string `json:"-" db:"path"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateSuiteRequest is the payload for creating a suite.
type CreateSuiteRequest struct {
	ProjectID   int64  `json:"project"`
	ParentID    *int64 `json:"parent,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateSuiteRequest is the payload for a partial suite update.
type UpdateSuiteRequest struct {
	ParentID    *int64  `json:"parent,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// SuiteTreeNode is a suite annotated with its children and matching cases,
// used by descendants-tree and case search responses.
type SuiteTreeNode struct {
	Suite
	Children  []*SuiteTreeNode `json:"children"`
	TestCases []*Case          `json:"test_cases"`
}

// Breadcrumb is one element of a root→node ancestor chain.
type Breadcrumb struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ParentID *int64 `json:"parent"`
}
