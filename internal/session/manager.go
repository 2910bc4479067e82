// Package session holds the form state of every browser session and enforces
// its invariants: one file or URL per summary form, one live request per form.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/models"
	"github.com/patrickmn/go-cache"
)

// Alert texts shown to the user.
const (
	AlertChooseImage      = "Choose an image first"
	AlertSelectFileOrURL  = "Please select a file or enter a URL"
	alertUploadFailed     = "Upload failed: "
	alertSummarizeFailed  = "Error: "
	DefaultSessionTimeout = 30 * time.Minute
)

// ErrNoSelection is returned when a form is submitted with nothing selected.
var ErrNoSelection = errors.New("nothing selected")

// Notifier is told about every state change of a session.
type Notifier interface {
	Notify(sessionID string, ev models.StateEvent)
}

// FileReleaser deletes stored files that are no longer referenced.
type FileReleaser interface {
	Delete(id string) error
}

// Ticket identifies one submission. Ctx is cancelled when a newer
// submission of the same form starts or the session goes away.
type Ticket struct {
	SessionID string
	Form      models.FormName
	Seq       uint64
	Ctx       context.Context
	File      *models.FileRef
	URL       string
}

type control struct {
	seq    uint64
	cancel context.CancelFunc
}

// abort cancels the in-flight request, if any, and invalidates its seq.
func (c *control) abort() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
}

// State is the form state of one browser session.
type State struct {
	mu         sync.Mutex
	id         string
	image      models.ImageForm
	summary    models.SummaryForm
	imageCtl   control
	summaryCtl control
}

func newState(id string) *State {
	return &State{
		id:      id,
		image:   models.ImageForm{Status: models.FormStatusIdle},
		summary: models.SummaryForm{Status: models.FormStatusIdle},
	}
}

// Options configures a Manager.
type Options struct {
	Timeout         time.Duration
	CleanupInterval time.Duration
	Files           FileReleaser
	Notifier        Notifier
	Logger          *slog.Logger
}

// Manager owns all sessions.
type Manager struct {
	cache    *cache.Cache
	mu       sync.Mutex
	files    FileReleaser
	notifier Notifier
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager creates a session manager. Sessions idle for longer than
// opts.Timeout are evicted and their files released.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSessionTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cache:    cache.New(opts.Timeout, opts.CleanupInterval),
		files:    opts.Files,
		notifier: opts.Notifier,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	m.cache.OnEvicted(func(id string, v interface{}) {
		if st, ok := v.(*State); ok {
			m.releaseState(st)
		}
	})
	return m
}

// get returns the session, creating it if needed, and refreshes its TTL.
func (m *Manager) get(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.cache.Get(id); ok {
		st := v.(*State)
		m.cache.SetDefault(id, st)
		return st
	}

	// An expired entry for id may still be waiting for the janitor.
	m.cache.DeleteExpired()
	st := newState(id)
	m.cache.SetDefault(id, st)
	return st
}

// lookup returns an existing session without creating or touching it.
func (m *Manager) lookup(id string) (*State, bool) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// Snapshot returns a copy of the session's forms.
func (m *Manager) Snapshot(id string) models.Snapshot {
	st := m.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return models.Snapshot{SessionID: id, Image: st.image, Summary: st.summary}
}

// View returns a copy of the session's forms and clears pending alerts, so
// every alert is shown exactly once.
func (m *Manager) View(id string) models.Snapshot {
	st := m.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := models.Snapshot{SessionID: id, Image: st.image, Summary: st.summary}
	st.image.Alert = ""
	st.summary.Alert = ""
	return snap
}

// SelectImage makes ref the selected image. The previous result is cleared
// and a request still running for the previous image is abandoned.
func (m *Manager) SelectImage(id string, ref *models.FileRef) {
	st := m.get(id)

	st.mu.Lock()
	old := st.image.File
	st.imageCtl.abort()
	st.image = models.ImageForm{File: ref, Status: models.FormStatusIdle}
	st.mu.Unlock()

	m.releaseFile(old, ref)
	m.notify(id, models.FormImage, models.FormStatusIdle)
}

// SelectDocument makes ref the selected document and clears the URL.
func (m *Manager) SelectDocument(id string, ref *models.FileRef) {
	st := m.get(id)

	st.mu.Lock()
	old := st.summary.File
	st.summaryCtl.abort()
	st.summary.File = ref
	st.summary.URL = ""
	st.summary.Loading = false
	st.summary.Status = models.FormStatusIdle
	st.mu.Unlock()

	m.releaseFile(old, ref)
	m.notify(id, models.FormSummary, models.FormStatusIdle)
}

// SetURL sets the URL input and clears the selected document.
func (m *Manager) SetURL(id, url string) {
	st := m.get(id)

	st.mu.Lock()
	old := st.summary.File
	st.summaryCtl.abort()
	st.summary.File = nil
	st.summary.URL = url
	st.summary.Loading = false
	st.summary.Status = models.FormStatusIdle
	st.mu.Unlock()

	m.releaseFile(old, nil)
	m.notify(id, models.FormSummary, models.FormStatusIdle)
}

// Alert queues a one-shot message for form without touching its selection.
func (m *Manager) Alert(id string, form models.FormName, msg string) {
	st := m.get(id)

	st.mu.Lock()
	var status models.FormStatus
	if form == models.FormImage {
		st.image.Alert = msg
		status = st.image.Status
	} else {
		st.summary.Alert = msg
		status = st.summary.Status
	}
	st.mu.Unlock()

	m.notify(id, form, status)
}

// BeginImage starts an analysis submission.
func (m *Manager) BeginImage(id string) (Ticket, error) {
	st := m.get(id)

	st.mu.Lock()
	if st.image.File == nil {
		st.image.Alert = AlertChooseImage
		st.mu.Unlock()
		m.notify(id, models.FormImage, st.imageStatus())
		return Ticket{}, ErrNoSelection
	}

	st.imageCtl.abort()
	ctx, cancel := context.WithCancel(m.ctx)
	st.imageCtl.cancel = cancel
	st.image.Loading = true
	st.image.Status = models.FormStatusSubmitting
	t := Ticket{
		SessionID: id,
		Form:      models.FormImage,
		Seq:       st.imageCtl.seq,
		Ctx:       ctx,
		File:      st.image.File,
	}
	st.mu.Unlock()

	m.notify(id, models.FormImage, models.FormStatusSubmitting)
	return t, nil
}

// BeginSummary starts a summarization submission.
func (m *Manager) BeginSummary(id string) (Ticket, error) {
	st := m.get(id)

	st.mu.Lock()
	url := strings.TrimSpace(st.summary.URL)
	if st.summary.File == nil && url == "" {
		st.summary.Alert = AlertSelectFileOrURL
		st.mu.Unlock()
		m.notify(id, models.FormSummary, st.summaryStatus())
		return Ticket{}, ErrNoSelection
	}

	st.summaryCtl.abort()
	ctx, cancel := context.WithCancel(m.ctx)
	st.summaryCtl.cancel = cancel
	st.summary.Loading = true
	st.summary.Status = models.FormStatusSubmitting
	t := Ticket{
		SessionID: id,
		Form:      models.FormSummary,
		Seq:       st.summaryCtl.seq,
		Ctx:       ctx,
		File:      st.summary.File,
	}
	if t.File == nil {
		t.URL = url
	}
	st.mu.Unlock()

	m.notify(id, models.FormSummary, models.FormStatusSubmitting)
	return t, nil
}

// CompleteImage applies the outcome of the submission seq. Outcomes of
// superseded submissions are discarded and false is returned.
func (m *Manager) CompleteImage(id string, seq uint64, res *models.AnalysisResult, err error) bool {
	st, ok := m.lookup(id)
	if !ok {
		return false
	}

	st.mu.Lock()
	if seq != st.imageCtl.seq || !st.image.Loading {
		st.mu.Unlock()
		m.log.Debug("discarding stale analysis response", "session", id, "seq", seq)
		return false
	}
	if st.imageCtl.cancel != nil {
		st.imageCtl.cancel()
		st.imageCtl.cancel = nil
	}

	st.image.Loading = false
	var se *analyzer.ServiceError
	switch {
	case err == nil:
		st.image.Result = res
		st.image.Status = models.FormStatusSuccess
	case errors.As(err, &se):
		st.image.Result = &models.AnalysisResult{Error: se.Message}
		st.image.Status = models.FormStatusFailure
	default:
		st.image.Alert = alertUploadFailed + err.Error()
		st.image.Status = models.FormStatusFailure
	}
	status := st.image.Status
	st.mu.Unlock()

	m.notify(id, models.FormImage, status)
	return true
}

// CompleteSummary applies the outcome of the submission seq. A failed
// submission keeps the summary shown before it.
func (m *Manager) CompleteSummary(id string, seq uint64, res *models.SummaryResult, err error) bool {
	st, ok := m.lookup(id)
	if !ok {
		return false
	}

	st.mu.Lock()
	if seq != st.summaryCtl.seq || !st.summary.Loading {
		st.mu.Unlock()
		m.log.Debug("discarding stale summary response", "session", id, "seq", seq)
		return false
	}
	if st.summaryCtl.cancel != nil {
		st.summaryCtl.cancel()
		st.summaryCtl.cancel = nil
	}

	st.summary.Loading = false
	var se *analyzer.ServiceError
	switch {
	case err == nil:
		st.summary.Summary = res.Summary
		st.summary.Status = models.FormStatusSuccess
	case errors.As(err, &se):
		st.summary.Alert = se.Message
		st.summary.Status = models.FormStatusFailure
	default:
		st.summary.Alert = alertSummarizeFailed + err.Error()
		st.summary.Status = models.FormStatusFailure
	}
	status := st.summary.Status
	st.mu.Unlock()

	m.notify(id, models.FormSummary, status)
	return true
}

// Release drops a session: in-flight requests are cancelled and its files
// deleted.
func (m *Manager) Release(id string) {
	m.cache.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.cache.ItemCount()
}

// Close cancels every in-flight request and releases all sessions.
func (m *Manager) Close() {
	m.cancel()
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
}

func (m *Manager) releaseState(st *State) {
	st.mu.Lock()
	st.imageCtl.abort()
	st.summaryCtl.abort()
	files := []*models.FileRef{st.image.File, st.summary.File}
	st.mu.Unlock()

	for _, f := range files {
		m.releaseFile(f, nil)
	}
	m.log.Debug("session released", "session", st.id)
}

func (m *Manager) releaseFile(old, current *models.FileRef) {
	if old == nil || m.files == nil {
		return
	}
	if current != nil && current.ID == old.ID {
		return
	}
	if err := m.files.Delete(old.ID); err != nil {
		m.log.Warn("failed to release file", "file", old.ID, "error", err)
	}
}

func (m *Manager) notify(id string, form models.FormName, status models.FormStatus) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(id, models.StateEvent{Type: "state", Form: form, Status: status})
}

func (st *State) imageStatus() models.FormStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.image.Status
}

func (st *State) summaryStatus() models.FormStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.summary.Status
}
