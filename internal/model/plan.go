package model

import "time"

// Parameter is a named value used for plan fan-out.
type Parameter struct {
	ID        int64  `json:"id" db:"id"`
	ProjectID int64  `json:"project" db:"project_id"`
	GroupName string `json:"group_name" db:"group_name"`
	Data      string `json:"data" db:"data"`
	IsDeleted bool   `json:"-" db:"is_deleted"`
}

// Plan is a node in the plan tree that owns tests.
type Plan struct {
	ID          int64                  `json:"id" db:"id"`
	ProjectID   int64                  `json:"project" db:"project_id"`
	ParentID    *int64                 `json:"parent" db:"parent_id"`
	Name        string                 `json:"name" db:"name"`
	Description string                 `json:"description" db:"description"`
	StartedAt   time.Time              `json:"started_at" db:"started_at"`
	DueDate     time.Time              `json:"due_date" db:"due_date"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty" db:"finished_at"`
	IsArchive   bool                   `json:"is_archive" db:"is_archive"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`

	ParameterIDs []int64      `json:"parameters,omitempty"`
	Parameters   []*Parameter `json:"-"`

	TreeID int64  `json:"-" db:"tree_id"`
	Path   string `json:"-" db:"path"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Title composes the display title: "name [p1, p2, …]" when parameters exist.
func (p *Plan) Title() string {
	if len(p.Parameters) == 0 {
		return p.Name
	}
	title := p.Name + " ["
	for i, param := range p.Parameters {
		if i > 0 {
			title += ", "
		}
		title += param.Data
	}
	return title + "]"
}

// CreatePlanRequest is the payload for creating plans. When Parameters names
// more than one parameter group, the request fans out into one plan per
// combination of the groups' Cartesian product.
type CreatePlanRequest struct {
	ProjectID   int64                  `json:"project"`
	ParentID    *int64                 `json:"parent,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	StartedAt   time.Time              `json:"started_at"`
	DueDate     time.Time              `json:"due_date"`
	Parameters  []int64                `json:"parameters,omitempty"`
	TestCases   []int64                `json:"test_cases,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// UpdatePlanRequest is the payload for a partial plan update. A non-nil
// TestCases reconciles the plan's tests against the listed cases.
type UpdatePlanRequest struct {
	ParentID    *int64                 `json:"parent,omitempty"`
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	DueDate     *time.Time             `json:"due_date,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	TestCases   *[]int64               `json:"test_cases,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}
