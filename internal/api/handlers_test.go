package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/session"
	"github.com/ai-playground/backend/internal/storage"
	"github.com/ai-playground/backend/internal/submit"
	"github.com/ai-playground/backend/internal/testutil"
	"github.com/ai-playground/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// pngBytes is a minimal PNG header, enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testServer struct {
	e        *echo.Echo
	fake     *testutil.FakeService
	store    *storage.LocalStore
	sessions *session.Manager
	runner   *submit.Runner
	hub      *Hub
	cookie   *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := testutil.NewFakeService(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	hub := NewHub()
	sessions := session.NewManager(session.Options{Files: store, Notifier: hub})
	client := analyzer.NewClient(analyzer.Options{BaseURL: fake.URL})
	runner := submit.NewRunner(client, store, sessions, 0, nil)
	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	t.Cleanup(func() {
		sessions.Close()
		runner.Wait()
	})

	e := echo.New()
	SetupMiddleware(e, MiddlewareOptions{ExposeErrorDetails: true})
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:    store,
		Sessions: sessions,
		Runner:   runner,
		Renderer: renderer,
		Service:  client,
		Upstream: client,
		Hub:      hub,
		Page: PageOptions{
			ImageAccept:        "image/*",
			DocumentExtensions: []string{".pdf", ".docx"},
		},
		Version: "test",
	}), false)

	return &testServer{e: e, fake: fake, store: store, sessions: sessions, runner: runner, hub: hub}
}

// do serves req, carrying the session cookie across calls.
func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			s.cookie = c
		}
	}
	return rec
}

func (s *testServer) sessionID() string {
	if s.cookie == nil {
		return ""
	}
	return s.cookie.Value
}

func (s *testServer) page(t *testing.T, tab string) *goquery.Document {
	t.Helper()
	rec := s.do(httptest.NewRequest(http.MethodGet, "/?tab="+tab, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	return doc
}

func (s *testServer) post(path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	return s.do(req)
}

type upload struct {
	field    string
	filename string
	data     []byte
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}
