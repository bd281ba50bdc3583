package model

import "time"

// Test is an instance of a case inside a plan. Tests are never hard-deleted
// by user action; they disappear only via cascade.
type Test struct {
	ID           int64  `json:"id" db:"id"`
	ProjectID    int64  `json:"project" db:"project_id"`
	PlanID       int64  `json:"plan" db:"plan_id"`
	CaseID       int64  `json:"case" db:"case_id"`
	AssigneeID   *int64 `json:"assignee,omitempty" db:"assignee_id"`
	IsArchive    bool   `json:"is_archive" db:"is_archive"`
	LastStatusID *int64 `json:"last_status,omitempty" db:"last_status_id"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateTestRequest is the payload for a test update.
type UpdateTestRequest struct {
	AssigneeID *int64 `json:"assignee,omitempty"`
	PlanID     *int64 `json:"plan,omitempty"`
}

// BulkUpdateTestsRequest updates a set of tests at once.
type BulkUpdateTestsRequest struct {
	IDs        []int64 `json:"ids"`
	AssigneeID *int64  `json:"assignee,omitempty"`
	PlanID     *int64  `json:"plan,omitempty"`
}
