// Package models contains domain types for the AI Playground.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// BBoxLen is the number of coordinates in a bounding box.
const BBoxLen = 4

// Detection is a single object-recognition result returned by the
// analysis service. BBox coordinates follow the service's convention.
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// Validate checks the shape of a detection as received over the wire.
func (d Detection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", d.Confidence)
	}
	if len(d.BBox) != BBoxLen {
		return fmt.Errorf("bbox has %d values, want %d", len(d.BBox), BBoxLen)
	}
	return nil
}

// ConfidenceText formats the confidence with two decimals.
func (d Detection) ConfidenceText() string {
	return strconv.FormatFloat(d.Confidence, 'f', 2, 64)
}

// BBoxText joins the bounding box values with ", " using the shortest
// decimal form of each value (12.5, 100).
func (d Detection) BBoxText() string {
	parts := make([]string, len(d.BBox))
	for i, v := range d.BBox {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

// AnalysisResult is the decoded /analyze response. When Error is set the
// remaining fields carry no meaning.
type AnalysisResult struct {
	Caption        string      `json:"caption"`
	Detections     []Detection `json:"detections"`
	AnnotatedImage string      `json:"annotated_image,omitempty"` // base64 PNG
	Error          string      `json:"error,omitempty"`
}

// Failed reports whether the service rejected or failed the request.
func (r *AnalysisResult) Failed() bool {
	return r != nil && r.Error != ""
}
