package submit

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/models"
	"github.com/ai-playground/backend/internal/session"
	"github.com/ai-playground/backend/internal/storage"
	"github.com/ai-playground/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fake     *testutil.FakeService
	store    *storage.LocalStore
	sessions *session.Manager
	runner   *Runner
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	fake := testutil.NewFakeService(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(session.Options{Files: store})
	client := analyzer.NewClient(analyzer.Options{BaseURL: fake.URL})
	runner := NewRunner(client, store, sessions, timeout, nil)
	t.Cleanup(func() {
		sessions.Close()
		runner.Wait()
	})
	return &fixture{fake: fake, store: store, sessions: sessions, runner: runner}
}

func (f *fixture) save(t *testing.T, name, content string) *models.FileRef {
	ref, err := f.store.Save(name, strings.NewReader(content))
	require.NoError(t, err)
	return ref
}

func TestRunner_Image(t *testing.T) {
	f := newFixture(t, 0)
	f.fake.Enqueue("/analyze", testutil.Reply{Body: map[string]any{
		"caption":    "a bird",
		"detections": []map[string]any{{"label": "bird", "confidence": 0.77, "bbox": []float64{1, 2, 3, 4}}},
	}})

	f.sessions.SelectImage("s1", f.save(t, "bird.jpg", "jpegbytes"))
	ticket, err := f.sessions.BeginImage("s1")
	require.NoError(t, err)

	f.runner.StartImage(ticket)
	f.runner.Wait()

	snap := f.sessions.Snapshot("s1")
	assert.False(t, snap.Image.Loading)
	require.NotNil(t, snap.Image.Result)
	assert.Equal(t, "a bird", snap.Image.Result.Caption)
	require.Len(t, snap.Image.Result.Detections, 1)

	reqs := f.fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []byte("jpegbytes"), reqs[0].Files["image"])
	assert.Equal(t, "bird.jpg", reqs[0].Filename["image"])
}

func TestRunner_ImageServiceError(t *testing.T) {
	f := newFixture(t, 0)
	f.fake.Enqueue("/analyze", testutil.Reply{Status: http.StatusBadRequest, Body: map[string]any{"error": "Unsupported image type: x"}})

	f.sessions.SelectImage("s1", f.save(t, "bad.jpg", "notanimage"))
	ticket, err := f.sessions.BeginImage("s1")
	require.NoError(t, err)

	f.runner.StartImage(ticket)
	f.runner.Wait()

	snap := f.sessions.View("s1")
	require.NotNil(t, snap.Image.Result)
	assert.Equal(t, "Unsupported image type: x", snap.Image.Result.Error)
	assert.Empty(t, snap.Image.Alert)
}

func TestRunner_SummaryFileAndURL(t *testing.T) {
	f := newFixture(t, 0)

	f.sessions.SelectDocument("s1", f.save(t, "report.pdf", "%PDF-1.4 body"))
	ticket, err := f.sessions.BeginSummary("s1")
	require.NoError(t, err)
	f.runner.StartSummary(ticket)
	f.runner.Wait()

	f.sessions.SetURL("s1", "https://example.com/article")
	ticket, err = f.sessions.BeginSummary("s1")
	require.NoError(t, err)
	f.runner.StartSummary(ticket)
	f.runner.Wait()

	reqs := f.fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []byte("%PDF-1.4 body"), reqs[0].Files["file"])
	assert.NotContains(t, reqs[0].Fields, "url")
	assert.Equal(t, "https://example.com/article", reqs[1].Fields["url"])
	assert.Empty(t, reqs[1].Files)

	assert.Equal(t, "short summary", f.sessions.Snapshot("s1").Summary.Summary)
}

func TestRunner_SupersededSubmission(t *testing.T) {
	f := newFixture(t, 0)
	f.fake.Hold()

	f.sessions.SetURL("s1", "https://example.com")
	first, err := f.sessions.BeginSummary("s1")
	require.NoError(t, err)
	f.runner.StartSummary(first)

	second, err := f.sessions.BeginSummary("s1")
	require.NoError(t, err)
	f.runner.StartSummary(second)

	assert.Eventually(t, func() bool { return f.fake.Hits("/summarize") >= 1 }, time.Second, 5*time.Millisecond)
	f.fake.Release()
	f.runner.Wait()

	view := f.sessions.View("s1")
	assert.False(t, view.Summary.Loading)
	assert.Equal(t, models.FormStatusSuccess, view.Summary.Status)
	assert.Equal(t, "short summary", view.Summary.Summary)
	assert.Empty(t, view.Summary.Alert, "the cancelled request does not alert")
}

func TestRunner_Timeout(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	f.fake.Hold()

	f.sessions.SelectImage("s1", f.save(t, "a.png", "x"))
	ticket, err := f.sessions.BeginImage("s1")
	require.NoError(t, err)

	f.runner.StartImage(ticket)
	f.runner.Wait()

	view := f.sessions.View("s1")
	assert.False(t, view.Image.Loading)
	assert.Equal(t, models.FormStatusFailure, view.Image.Status)
	assert.Contains(t, view.Image.Alert, "Upload failed: ")
	assert.Contains(t, view.Image.Alert, context.DeadlineExceeded.Error())
}

func TestRunner_MissingFile(t *testing.T) {
	f := newFixture(t, 0)

	ref := f.save(t, "gone.png", "x")
	f.sessions.SelectImage("s1", ref)
	ticket, err := f.sessions.BeginImage("s1")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ref.ID))

	f.runner.StartImage(ticket)
	f.runner.Wait()

	view := f.sessions.View("s1")
	assert.Contains(t, view.Image.Alert, "open image")
	assert.Equal(t, 0, f.fake.Hits("/analyze"))
}

type panicService struct{}

func (panicService) Analyze(context.Context, string, io.Reader) (*models.AnalysisResult, error) {
	panic("boom")
}

func (panicService) Summarize(context.Context, models.SummaryInput) (*models.SummaryResult, error) {
	panic("boom")
}

func TestRunner_RecoversPanic(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(session.Options{Files: store})
	defer sessions.Close()
	runner := NewRunner(panicService{}, store, sessions, 0, nil)

	sessions.SetURL("s1", "https://example.com")
	ticket, err := sessions.BeginSummary("s1")
	require.NoError(t, err)

	runner.StartSummary(ticket)
	runner.Wait()

	assert.Equal(t, "Error: submission panicked: boom", sessions.View("s1").Summary.Alert)
}
