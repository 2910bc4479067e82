package web

import (
	"html/template"
	"net/url"
	"regexp"

	"github.com/ai-playground/backend/internal/models"
	"mvdan.cc/xurls/v2"
)

// Tabs of the page.
const (
	TabImage   = "yolo"
	TabSummary = "summarizer"
)

// Button labels.
const (
	LabelAnalyze     = "Analyze Image"
	LabelAnalyzing   = "Analyzing..."
	LabelSummarize   = "Get Summary"
	LabelSummarizing = "Summarizing..."
)

// PreviewPath serves the selected image.
const PreviewPath = "/ui/image/preview"

// URLHint is shown under a URL that does not start with http:// or https://.
// The URL is still sent as typed.
const URLHint = "This does not look like an http or https link. The service may not be able to fetch it."

var httpURL = mustHTTPURL()

func mustHTTPURL() *regexp.Regexp {
	re, err := xurls.StrictMatchingScheme(`https?://`)
	if err != nil {
		panic(err)
	}
	return re
}

// LooksLikeHTTPURL reports whether s starts with an http(s) URL.
func LooksLikeHTTPURL(s string) bool {
	loc := httpURL.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// NormalizeTab maps unknown tab names to the image tab.
func NormalizeTab(tab string) string {
	if tab == TabSummary {
		return TabSummary
	}
	return TabImage
}

// PageData is everything the page template reads.
type PageData struct {
	Tab            string
	Image          ImageView
	Summary        SummaryView
	Alerts         []string
	ImageAccept    string
	DocumentAccept string
}

// ImageView is the projection of models.ImageForm.
type ImageView struct {
	FileName     string
	PreviewURL   string
	CanSubmit    bool
	Loading      bool
	ButtonLabel  string
	HasResult    bool
	Error        string
	Caption      string
	Detections   []DetectionView
	AnnotatedSrc template.URL
}

// DetectionView is one rendered list entry.
type DetectionView struct {
	Label      string
	Confidence string
	BBox       string
}

// SummaryView is the projection of models.SummaryForm.
type SummaryView struct {
	FileName    string
	URL         string
	URLHint     string
	Loading     bool
	ButtonLabel string
	Summary     string
}

// NewPageData projects a session snapshot onto the page.
func NewPageData(snap models.Snapshot, tab, imageAccept, documentAccept string) PageData {
	data := PageData{
		Tab:            NormalizeTab(tab),
		Image:          newImageView(snap.Image),
		Summary:        newSummaryView(snap.Summary),
		ImageAccept:    imageAccept,
		DocumentAccept: documentAccept,
	}
	for _, a := range []string{snap.Image.Alert, snap.Summary.Alert} {
		if a != "" {
			data.Alerts = append(data.Alerts, a)
		}
	}
	return data
}

func newImageView(f models.ImageForm) ImageView {
	v := ImageView{
		CanSubmit:   f.CanSubmit(),
		Loading:     f.Loading,
		ButtonLabel: LabelAnalyze,
	}
	if f.Loading {
		v.ButtonLabel = LabelAnalyzing
	}
	if f.File != nil {
		v.FileName = f.File.Name
		v.PreviewURL = PreviewPath + "?v=" + url.QueryEscape(f.File.ID)
	}

	r := f.Result
	if r == nil {
		return v
	}
	v.HasResult = true
	if r.Failed() {
		v.Error = r.Error
		return v
	}

	v.Caption = r.Caption
	v.Detections = make([]DetectionView, 0, len(r.Detections))
	for _, d := range r.Detections {
		v.Detections = append(v.Detections, DetectionView{
			Label:      d.Label,
			Confidence: d.ConfidenceText(),
			BBox:       d.BBoxText(),
		})
	}
	if r.AnnotatedImage != "" {
		// The client validated the payload as base64, so it cannot break
		// out of the data URI.
		v.AnnotatedSrc = template.URL("data:image/png;base64," + r.AnnotatedImage)
	}
	return v
}

func newSummaryView(f models.SummaryForm) SummaryView {
	v := SummaryView{
		URL:         f.URL,
		Loading:     f.Loading,
		ButtonLabel: LabelSummarize,
		Summary:     f.Summary,
	}
	if f.Loading {
		v.ButtonLabel = LabelSummarizing
	}
	if f.File != nil {
		v.FileName = f.File.Name
	}
	if f.URL != "" && !LooksLikeHTTPURL(f.URL) {
		v.URLHint = URLHint
	}
	return v
}
