package model

import "time"

// CopyTarget selects one source entity and an optional name for its copy.
type CopyTarget struct {
	ID      int64   `json:"id"`
	NewName *string `json:"new_name,omitempty"`
}

// CopyCasesRequest copies cases, optionally into another suite of the same
// project.
type CopyCasesRequest struct {
	Cases      []CopyTarget `json:"cases"`
	DstSuiteID *int64       `json:"dst_suite_id,omitempty"`
}

// CopySuitesRequest copies suite subtrees, optionally under another suite
// and into another project.
type CopySuitesRequest struct {
	Suites       []CopyTarget `json:"suites"`
	DstSuiteID   *int64       `json:"dst_suite_id,omitempty"`
	DstProjectID *int64       `json:"dst_project_id,omitempty"`
}

// PlanCopyTarget selects one source plan with optional schedule overrides for
// its copy.
type PlanCopyTarget struct {
	ID        int64      `json:"id"`
	NewName   *string    `json:"new_name,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
}

// CopyPlansRequest copies plan subtrees with their tests, optionally under
// another plan of the same project.
type CopyPlansRequest struct {
	Plans        []PlanCopyTarget `json:"plans"`
	DstPlanID    *int64           `json:"dst_plan_id,omitempty"`
	KeepAssignee bool             `json:"keep_assignee,omitempty"`
}
