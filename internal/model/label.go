package model

// Label is a per-project tag attachable to versioned entities.
type Label struct {
	ID        int64  `json:"id" db:"id"`
	ProjectID int64  `json:"project" db:"project_id"`
	Name      string `json:"name" db:"name"`
	UserID    int64  `json:"user" db:"user_id"`
	Type      int    `json:"type" db:"type"`
	IsDeleted bool   `json:"-" db:"is_deleted"`
}

// LabeledItem attaches a label to a target row, pinning the target's history
// version at attach time.
type LabeledItem struct {
	ID                     int64      `json:"id" db:"id"`
	LabelID                int64      `json:"label" db:"label_id"`
	ContentType            EntityKind `json:"content_type" db:"content_type"`
	ObjectID               int64      `json:"object_id" db:"object_id"`
	ContentObjectHistoryID *int64     `json:"content_object_history_id,omitempty" db:"content_object_history_id"`
	IsDeleted              bool       `json:"-" db:"is_deleted"`
}

// LabelsCondition selects the combination semantics of a label filter.
type LabelsCondition string

const (
	LabelsConditionOr  LabelsCondition = "or"
	LabelsConditionAnd LabelsCondition = "and"
)

// LabelFilter carries the label inclusion/exclusion sets of a query.
type LabelFilter struct {
	Labels    []int64
	NotLabels []int64
	Condition LabelsCondition
}

// Empty reports whether the filter constrains anything.
func (f LabelFilter) Empty() bool {
	return len(f.Labels) == 0 && len(f.NotLabels) == 0
}

// Match evaluates the filter against a target's attached label set.
//
// Condition "or": match if any chosen label is attached OR none of the
// excluded labels are attached. Condition "and": match if all chosen labels
// are attached AND none of the excluded labels are attached.
func (f LabelFilter) Match(attached map[int64]bool) bool {
	if f.Empty() {
		return true
	}

	anyIncluded := false
	for _, id := range f.Labels {
		if attached[id] {
			anyIncluded = true
			break
		}
	}
	allIncluded := true
	for _, id := range f.Labels {
		if !attached[id] {
			allIncluded = false
			break
		}
	}
	anyExcluded := false
	for _, id := range f.NotLabels {
		if attached[id] {
			anyExcluded = true
			break
		}
	}

	if f.Condition == LabelsConditionAnd {
		if len(f.Labels) > 0 && !allIncluded {
			return false
		}
		return !anyExcluded
	}

	// "or" semantics
	if len(f.Labels) > 0 && anyIncluded {
		return true
	}
	if len(f.NotLabels) > 0 && !anyExcluded {
		return true
	}
	return false
}
