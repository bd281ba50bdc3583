package model

import "time"

// TestResult is a single execution outcome for a test, pinned to the case
// version that was current at write time.
type TestResult struct {
	ID              int64                  `json:"id" db:"id"`
	TestID          int64                  `json:"test" db:"test_id"`
	ProjectID       int64                  `json:"project" db:"project_id"`
	StatusID        int64                  `json:"status" db:"status_id"`
	UserID          int64                  `json:"user" db:"user_id"`
	Comment         string                 `json:"comment" db:"comment"`
	ExecutionTime   *int64                 `json:"execution_time,omitempty" db:"execution_time"` // seconds
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
	IsArchive       bool                   `json:"is_archive" db:"is_archive"`
	TestCaseVersion int64                  `json:"test_case_version" db:"test_case_version"`

	StepResults []*TestStepResult `json:"steps_results,omitempty"`

	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TestStepResult is a step-wise outcome inside a result.
type TestStepResult struct {
	ID           int64 `json:"id" db:"id"`
	TestResultID int64 `json:"test_result" db:"test_result_id"`
	StepID       int64 `json:"step" db:"step_id"`
	StatusID     int64 `json:"status" db:"status_id"`
	IsDeleted    bool  `json:"-" db:"is_deleted"`
}

// StepResultInput carries an incoming step result; nil ID creates, present
// IDs update, missing previously-known IDs delete.
type StepResultInput struct {
	ID       *int64 `json:"id,omitempty"`
	StepID   int64  `json:"step"`
	StatusID int64  `json:"status"`
}

// CreateResultRequest is the payload for writing a result to a test.
type CreateResultRequest struct {
	TestID        int64                  `json:"test"`
	StatusID      int64                  `json:"status"`
	Comment       string                 `json:"comment"`
	ExecutionTime *int64                 `json:"execution_time,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	StepResults   []StepResultInput      `json:"steps_results,omitempty"`
}

// UpdateResultRequest is the payload for a result update, honored only inside
// the project's editability window.
type UpdateResultRequest struct {
	StatusID      *int64                 `json:"status,omitempty"`
	Comment       *string                `json:"comment,omitempty"`
	ExecutionTime *int64                 `json:"execution_time,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	StepResults   []StepResultInput      `json:"steps_results,omitempty"`
}
