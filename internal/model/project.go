package model

import "time"

// ProjectSettings holds per-project configuration stored as a JSON column.
type ProjectSettings struct {
	IsResultEditable bool            `json:"is_result_editable"`
	ResultEditLimit  *int64          `json:"result_edit_limit,omitempty"` // seconds
	StatusOrder      map[int64]int   `json:"status_order,omitempty"`
	DefaultStatus    *int64          `json:"default_status,omitempty"`
}

// Project represents a tenant project.
type Project struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	IsArchive   bool            `json:"is_archive" db:"is_archive"`
	IsPrivate   bool            `json:"is_private" db:"is_private"`
	Settings    ProjectSettings `json:"settings"`

	// Precomputed statistics maintained alongside entity writes.
	CasesCount  int64 `json:"cases_count" db:"cases_count"`
	SuitesCount int64 `json:"suites_count" db:"suites_count"`
	PlansCount  int64 `json:"plans_count" db:"plans_count"`
	TestsCount  int64 `json:"tests_count" db:"tests_count"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ResultEditLimitSeconds returns the edit window, or 0 when unlimited editing
// is disabled by a missing limit.
func (s ProjectSettings) ResultEditLimitSeconds() (int64, bool) {
	if s.ResultEditLimit == nil {
		return 0, false
	}
	return *s.ResultEditLimit, true
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	IsPrivate   bool             `json:"is_private"`
	Settings    *ProjectSettings `json:"settings,omitempty"`
}

// UpdateProjectRequest is the payload for a partial project update.
type UpdateProjectRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	IsPrivate   *bool            `json:"is_private,omitempty"`
	Settings    *ProjectSettings `json:"settings,omitempty"`
}

// ProjectProgress reports per-plan test progress over a date window.
type ProjectProgress struct {
	PlanID             int64  `json:"id"`
	Title              string `json:"title"`
	TestsTotal         int64  `json:"tests_total"`
	TestsProgressPeriod int64 `json:"tests_progress_period"`
	TestsProgressTotal int64  `json:"tests_progress_total"`
}
