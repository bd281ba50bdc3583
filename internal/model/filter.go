package model

// ListFilter carries the query shapes every collection endpoint accepts.
type ListFilter struct {
	ProjectID  int64
	Ordering   []string
	IsArchive  *bool
	Search     string
	TreeSearch string

	Labels LabelFilter

	// ParentID filters by direct parent; ParentIsNull selects roots.
	ParentID     *int64
	ParentIsNull bool

	// Parameters selects plans whose parameter set contains all listed ids.
	Parameters []int64

	// Attributes requires all listed keys present; AnyAttributes any of them.
	Attributes    []string
	AnyAttributes []string

	Limit  int
	Offset int
}
