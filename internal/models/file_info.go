package models

import "time"

// FileRef describes a file the user selected in one of the forms.
// The bytes live in the upload store under ID.
type FileRef struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
