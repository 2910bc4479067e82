package models

import "io"

// SummaryInput is the payload of one summarization request. Exactly one of
// File or URL is set.
type SummaryInput struct {
	FileName string
	File     io.Reader
	URL      string
}

// HasFile reports whether a document is attached.
func (in SummaryInput) HasFile() bool {
	return in.File != nil
}

// SummaryResult is the decoded /summarize response.
type SummaryResult struct {
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}
