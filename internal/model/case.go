package model

import "time"

// Case is an authored, versioned test specification.
type Case struct {
	ID          int64                  `json:"id" db:"id"`
	ProjectID   int64                  `json:"project" db:"project_id"`
	SuiteID     int64                  `json:"suite" db:"suite_id"`
	Name        string                 `json:"name" db:"name"`
	Setup       string                 `json:"setup" db:"setup"`
	Scenario    string                 `json:"scenario" db:"scenario"`
	Expected    string                 `json:"expected" db:"expected"`
	Teardown    string                 `json:"teardown" db:"teardown"`
	Estimate    *int64                 `json:"estimate,omitempty" db:"estimate"` // seconds
	Description string                 `json:"description" db:"description"`
	IsSteps     bool                   `json:"is_steps" db:"is_steps"`
	IsArchive   bool                   `json:"is_archive" db:"is_archive"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`

	Steps []*Step `json:"steps,omitempty"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Step is an ordered child of a case version.
type Step struct {
	ID        int64   `json:"id" db:"id"`
	CaseID    int64   `json:"test_case" db:"case_id"`
	Name      string  `json:"name" db:"name"`
	Scenario  string  `json:"scenario" db:"scenario"`
	Expected  string  `json:"expected" db:"expected"`
	SortOrder int     `json:"sort_order" db:"sort_order"`
	IsDeleted bool    `json:"-" db:"is_deleted"`

	Attachments []int64 `json:"attachments,omitempty"`
}

// StepInput carries an incoming step on case create/update. A nil ID means
// the step is new; present IDs update the matching live step.
type StepInput struct {
	ID        *int64 `json:"id,omitempty"`
	Name      string `json:"name"`
	Scenario  string `json:"scenario"`
	Expected  string `json:"expected"`
	SortOrder int    `json:"sort_order"`
}

// CreateCaseRequest is the payload for creating a case.
type CreateCaseRequest struct {
	ProjectID   int64                  `json:"project"`
	SuiteID     int64                  `json:"suite"`
	Name        string                 `json:"name"`
	Setup       string                 `json:"setup"`
	Scenario    string                 `json:"scenario"`
	Expected    string                 `json:"expected"`
	Teardown    string                 `json:"teardown"`
	Estimate    *string                `json:"estimate,omitempty"`
	Description string                 `json:"description"`
	IsSteps     bool                   `json:"is_steps"`
	Steps       []StepInput            `json:"steps,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Attachments []int64                `json:"attachments,omitempty"`
}

// UpdateCaseRequest is the payload for a case update. SkipHistory overwrites
// the tip history record instead of appending, author permitting.
type UpdateCaseRequest struct {
	SuiteID     *int64                 `json:"suite,omitempty"`
	Name        *string                `json:"name,omitempty"`
	Setup       *string                `json:"setup,omitempty"`
	Scenario    *string                `json:"scenario,omitempty"`
	Expected    *string                `json:"expected,omitempty"`
	Teardown    *string                `json:"teardown,omitempty"`
	Estimate    *string                `json:"estimate,omitempty"`
	Description *string                `json:"description,omitempty"`
	IsSteps     *bool                  `json:"is_steps,omitempty"`
	Steps       []StepInput            `json:"steps,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Attachments []int64                `json:"attachments,omitempty"`
	SkipHistory bool                   `json:"skip_history,omitempty"`
}

// CaseVersion is one immutable history record of a case.
type CaseVersion struct {
	HistoryID   int64       `json:"version" db:"history_id"`
	HistoryUser int64       `json:"history_user" db:"history_user_id"`
	HistoryDate time.Time   `json:"history_date" db:"history_date"`
	HistoryType HistoryType `json:"history_type" db:"history_type"`
	Case        Case        `json:"test_case"`
}

// StepVersion is one immutable history record of a step, pinned to the owning
// case version.
type StepVersion struct {
	HistoryID         int64       `json:"version" db:"history_id"`
	HistoryUser       int64       `json:"history_user" db:"history_user_id"`
	HistoryDate       time.Time   `json:"history_date" db:"history_date"`
	HistoryType       HistoryType `json:"history_type" db:"history_type"`
	TestCaseHistoryID int64       `json:"test_case_history_id" db:"test_case_history_id"`
	Step              Step        `json:"step"`
}
