package model

// AttributeType enumerates custom attribute value types.
type AttributeType string

const (
	AttributeTypeText AttributeType = "TXT"
	AttributeTypeJSON AttributeType = "JSON"
	AttributeTypeList AttributeType = "LIST"
)

// AttributePolicy configures how a custom attribute applies to one target
// entity class.
type AttributePolicy struct {
	IsRequired     bool    `json:"is_required"`
	SuiteIDs       []int64 `json:"suite_ids,omitempty"`
	StatusSpecific []int64 `json:"status_specific,omitempty"`
}

// CustomAttribute is a per-project attribute definition typed per entity.
// AppliedTo maps a target entity tag ("testcase", "testplan", "testresult")
// to its policy.
type CustomAttribute struct {
	ID        int64                          `json:"id" db:"id"`
	ProjectID int64                          `json:"project" db:"project_id"`
	Name      string                         `json:"name" db:"name"`
	Type      AttributeType                  `json:"type" db:"type"`
	AppliedTo map[EntityKind]AttributePolicy `json:"applied_to"`
	IsDeleted bool                           `json:"-" db:"is_deleted"`
}

// CreateAttributeRequest is the payload for creating a custom attribute.
type CreateAttributeRequest struct {
	ProjectID int64                          `json:"project"`
	Name      string                         `json:"name"`
	Type      AttributeType                  `json:"type"`
	AppliedTo map[EntityKind]AttributePolicy `json:"applied_to"`
}

// UpdateAttributeRequest is the payload for a custom attribute update.
type UpdateAttributeRequest struct {
	Name      *string                        `json:"name,omitempty"`
	Type      *AttributeType                 `json:"type,omitempty"`
	AppliedTo map[EntityKind]AttributePolicy `json:"applied_to,omitempty"`
}
