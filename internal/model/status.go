package model

// StatusType distinguishes instance-wide and per-project statuses.
type StatusType string

const (
	StatusTypeSystem StatusType = "SYSTEM"
	StatusTypeCustom StatusType = "CUSTOM"
)

// UntestedStatusID is the fixed id of the implicit "Untested" status. It is
// never stored on a result row; aggregation synthesizes it for tests without
// results.
const UntestedStatusID int64 = 0

// ResultStatus is a named, colored status; SYSTEM statuses carry no project
// and are shared across the instance.
type ResultStatus struct {
	ID        int64      `json:"id" db:"id"`
	ProjectID *int64     `json:"project,omitempty" db:"project_id"`
	Name      string     `json:"name" db:"name"`
	Color     string     `json:"color" db:"color"`
	Type      StatusType `json:"type" db:"type"`
	IsDeleted bool       `json:"-" db:"is_deleted"`
}

// UntestedStatus returns the synthetic status used for absent results.
func UntestedStatus() *ResultStatus {
	return &ResultStatus{
		ID:    UntestedStatusID,
		Name:  "Untested",
		Color: "#a0a0a0",
		Type:  StatusTypeSystem,
	}
}

// CreateStatusRequest is the payload for creating a status.
type CreateStatusRequest struct {
	ProjectID *int64     `json:"project,omitempty"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	Type      StatusType `json:"type"`
}

// UpdateStatusRequest is the payload for a status update. Type is immutable.
type UpdateStatusRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}
