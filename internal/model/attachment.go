package model

import "time"

// Attachment binds a stored file to a target row via a generic association.
// Textual fields reference attachments by the literal "attachments/<id>/".
type Attachment struct {
	ID          int64      `json:"id" db:"id"`
	ProjectID   int64      `json:"project" db:"project_id"`
	ContentType EntityKind `json:"content_type" db:"content_type"`
	ObjectID    *int64     `json:"object_id,omitempty" db:"object_id"`
	FileKey     string     `json:"file" db:"file_key"`
	Size        int64      `json:"size" db:"size"`
	Filename    string     `json:"filename" db:"filename"`
	MimeType    string     `json:"content_type_str" db:"mime_type"`
	Comment     string     `json:"comment" db:"comment"`
	UserID      int64      `json:"user" db:"user_id"`
	IsDeleted   bool       `json:"-" db:"is_deleted"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
