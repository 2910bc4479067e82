package models

// FormStatus is the lifecycle state of a form submission.
type FormStatus string

const (
	FormStatusIdle       FormStatus = "idle"
	FormStatusSubmitting FormStatus = "submitting"
	FormStatusSuccess    FormStatus = "success"
	FormStatusFailure    FormStatus = "failure"
)

// FormName identifies one of the two forms.
type FormName string

const (
	FormImage   FormName = "image"
	FormSummary FormName = "summary"
)

// ImageForm is the view state of the image analysis form.
type ImageForm struct {
	File    *FileRef        `json:"file,omitempty"`
	Result  *AnalysisResult `json:"result,omitempty"`
	Loading bool            `json:"loading"`
	Status  FormStatus      `json:"status"`
	Alert   string          `json:"alert,omitempty"`
}

// CanSubmit reports whether the analyze control is enabled.
func (f ImageForm) CanSubmit() bool {
	return !f.Loading && f.File != nil
}

// SummaryForm is the view state of the summarization form.
// At most one of File and URL is set.
type SummaryForm struct {
	File    *FileRef   `json:"file,omitempty"`
	URL     string     `json:"url,omitempty"`
	Summary string     `json:"summary,omitempty"`
	Loading bool       `json:"loading"`
	Status  FormStatus `json:"status"`
	Alert   string     `json:"alert,omitempty"`
}

// Snapshot is a copy of one session's form state, safe to render.
type Snapshot struct {
	SessionID string      `json:"sessionId"`
	Image     ImageForm   `json:"image"`
	Summary   SummaryForm `json:"summary"`
}

// StateEvent tells subscribers that a form of a session changed.
type StateEvent struct {
	Type   string     `json:"type"`
	Form   FormName   `json:"form"`
	Status FormStatus `json:"status"`
}
