// Package apperr provides typed application errors and error handling utilities.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for API responses.
type ErrorCode string

// Standard error codes
const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeConflict       ErrorCode = "CONFLICT"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeInternalError  ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// Domain error codes
const (
	CodeVersionNotFound        ErrorCode = "VERSION_NOT_FOUND"
	CodeForbiddenUser          ErrorCode = "FORBIDDEN_USER_TEST_CASE"
	CodeResultNotEditable      ErrorCode = "RESULT_NOT_EDITABLE"
	CodeInvalidMove            ErrorCode = "INVALID_MOVE"
	CodeDateRange              ErrorCode = "DATE_RANGE_ERROR"
	CodeRecursion              ErrorCode = "RECURSION_ERROR"
	CodeTestPlanParent         ErrorCode = "TEST_PLAN_PARENT_ERROR"
	CodeArchiveCaseForbidden   ErrorCode = "ARCHIVE_CASE_FORBIDDEN"
	CodeCrossProject           ErrorCode = "CROSS_PROJECT"
	CodeCrossProjectCopy       ErrorCode = "CROSS_PROJECT_COPY"
	CodeForeignAssignee        ErrorCode = "FOREIGN_ASSIGNEE"
	CodeArchivedProject        ErrorCode = "ARCHIVED_PROJECT_READ_ONLY"
	CodeEstimateInvalid        ErrorCode = "ESTIMATE_INVALID"
	CodeEstimateNegative       ErrorCode = "ESTIMATE_NEGATIVE"
	CodeEstimateWeek           ErrorCode = "ESTIMATE_WEEK"
	CodeEstimateTooBig         ErrorCode = "ESTIMATE_TOO_BIG"
	CodeDuplicateStatus        ErrorCode = "DUPLICATE_STATUS"
	CodeDuplicateAttribute     ErrorCode = "DUPLICATE_CUSTOM_ATTRIBUTE"
	CodeSystemStatusProject    ErrorCode = "SYSTEM_STATUS_HAS_PROJECT"
	CodeCustomStatusNoProject  ErrorCode = "CUSTOM_STATUS_MISSING_PROJECT"
	CodeStatusTypeImmutable    ErrorCode = "STATUS_TYPE_IMMUTABLE"
	CodeMissingAttribute       ErrorCode = "MISSING_REQUIRED_ATTRIBUTE"
	CodeBlankAttribute         ErrorCode = "BLANK_REQUIRED_ATTRIBUTE"
	CodeDuplicateAccessRequest ErrorCode = "DUPLICATE_ACCESS_REQUEST"
)

// ResultNotEditable sub-reasons.
const (
	ReasonTime          = "time"
	ReasonVersion       = "version"
	ReasonProjectPolicy = "project-policy"
	ReasonArchived      = "archived"
)

// AppError represents a structured application error.
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail key-value pair to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON returns the JSON representation of the error.
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFound creates a not found error for the named resource.
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

// Internal creates an internal server error.
func Internal(message string) *AppError {
	return New(CodeInternalError, message)
}

// VersionNotFound creates an error for a missing history version.
func VersionNotFound(version int64) *AppError {
	return New(CodeVersionNotFound, fmt.Sprintf("version %d not found", version)).
		WithDetail("version", version)
}

// ForbiddenUser creates the skip-history authorship violation error.
func ForbiddenUser() *AppError {
	return New(CodeForbiddenUser, "only the author of the current version may skip history")
}

// ResultNotEditable creates a result editability violation with a sub-reason.
func ResultNotEditable(reason string) *AppError {
	return New(CodeResultNotEditable, fmt.Sprintf("result is not editable: %s", reason)).
		WithDetail("reason", reason)
}

// InvalidMove creates a tree move violation error.
func InvalidMove(message string) *AppError {
	return New(CodeInvalidMove, message)
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeDateRange, CodeRecursion,
		CodeTestPlanParent, CodeArchiveCaseForbidden, CodeInvalidMove,
		CodeEstimateInvalid, CodeEstimateNegative, CodeEstimateWeek,
		CodeEstimateTooBig, CodeDuplicateStatus, CodeDuplicateAttribute,
		CodeSystemStatusProject, CodeCustomStatusNoProject,
		CodeStatusTypeImmutable, CodeMissingAttribute, CodeBlankAttribute,
		CodeForbiddenUser, CodeResultNotEditable:
		return http.StatusBadRequest
	case CodeNotFound, CodeVersionNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateAccessRequest:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeCrossProject, CodeCrossProjectCopy,
		CodeForeignAssignee, CodeArchivedProject:
		return http.StatusForbidden
	case CodeServiceUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is checks if the target error is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
