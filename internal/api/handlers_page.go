// handlers_page.go - Server-rendered form handlers
package api

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ai-playground/backend/internal/models"
	"github.com/ai-playground/backend/internal/session"
	"github.com/ai-playground/backend/internal/storage"
	"github.com/ai-playground/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEMsgpack is the content type of msgpack state responses.
const MIMEMsgpack = "application/msgpack"

// PageOptions carries the form settings from config. Both only feed the
// file inputs' accept attribute; the service decides what it supports.
type PageOptions struct {
	ImageAccept        string
	DocumentExtensions []string
}

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	sessions SessionManager
	store    storage.Store
	runner   Submitter
	renderer PageRenderer
	opts     PageOptions
}

// NewPageHandler creates a new page handler
func NewPageHandler(sessions SessionManager, store storage.Store, runner Submitter, renderer PageRenderer, opts PageOptions) PageHandler {
	return &PageHandlerImpl{
		sessions: sessions,
		store:    store,
		runner:   runner,
		renderer: renderer,
		opts:     opts,
	}
}

// HandleIndex renders the page for the session. Pending alerts are consumed.
func (h *PageHandlerImpl) HandleIndex(c echo.Context) error {
	snap := h.sessions.View(sessionID(c))
	data := web.NewPageData(snap, c.QueryParam("tab"), h.opts.ImageAccept, strings.Join(h.opts.DocumentExtensions, ","))

	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, data); err != nil {
		return NewInternalError("failed to render page", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// HandleSelectImage stores the chosen image and makes it the selection.
func (h *PageHandlerImpl) HandleSelectImage(c echo.Context) error {
	id := sessionID(c)
	ref, err := h.saveUpload(c, "image")
	if err != nil {
		return err
	}
	if ref == nil {
		h.sessions.Alert(id, models.FormImage, session.AlertChooseImage)
		return redirect(c, web.TabImage)
	}

	h.sessions.SelectImage(id, ref)
	return redirect(c, web.TabImage)
}

// HandleImagePreview streams the selected image back to the browser.
func (h *PageHandlerImpl) HandleImagePreview(c echo.Context) error {
	id := sessionID(c)
	snap := h.sessions.Snapshot(id)
	if snap.Image.File == nil {
		return NewNotFoundError("image selection", id)
	}

	rc, ref, err := h.store.Open(snap.Image.File.ID)
	if err != nil {
		return NewNotFoundError("image", snap.Image.File.ID)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	// Non-image uploads are still analyzed, but never served from our origin.
	if !strings.HasPrefix(ref.ContentType, "image/") {
		return NewUnsupportedMediaTypeError(ref.ContentType)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return c.Stream(http.StatusOK, ref.ContentType, rc)
}

// HandleAnalyze submits the selected image. With nothing selected the user
// is alerted and no request is made.
func (h *PageHandlerImpl) HandleAnalyze(c echo.Context) error {
	ticket, err := h.sessions.BeginImage(sessionID(c))
	switch {
	case errors.Is(err, session.ErrNoSelection):
	case err != nil:
		return NewInternalError("failed to start analysis", err)
	default:
		h.runner.StartImage(ticket)
	}
	return redirect(c, web.TabImage)
}

// HandleSelectDocument stores the chosen document and clears the URL.
func (h *PageHandlerImpl) HandleSelectDocument(c echo.Context) error {
	id := sessionID(c)
	fh, err := c.FormFile("file")
	if err != nil || fh.Size == 0 {
		h.sessions.Alert(id, models.FormSummary, session.AlertSelectFileOrURL)
		return redirect(c, web.TabSummary)
	}

	ref, err := h.saveUpload(c, "file")
	if err != nil {
		return err
	}
	h.sessions.SelectDocument(id, ref)
	return redirect(c, web.TabSummary)
}

// HandleSetURL sets the URL input and clears the selected document. The
// text is kept as typed apart from surrounding whitespace.
func (h *PageHandlerImpl) HandleSetURL(c echo.Context) error {
	h.sessions.SetURL(sessionID(c), strings.TrimSpace(c.FormValue("url")))
	return redirect(c, web.TabSummary)
}

// HandleSubmitSummary applies the inputs sent with the form and submits.
// A file upload wins over the URL field. With neither, an earlier selection
// is submitted as is.
func (h *PageHandlerImpl) HandleSubmitSummary(c echo.Context) error {
	id := sessionID(c)

	fh, ferr := c.FormFile("file")
	rawURL := strings.TrimSpace(c.FormValue("url"))
	switch {
	case ferr == nil && fh.Size > 0:
		ref, err := h.saveUpload(c, "file")
		if err != nil {
			return err
		}
		h.sessions.SelectDocument(id, ref)
	case rawURL != "":
		h.sessions.SetURL(id, rawURL)
	case h.sessions.Snapshot(id).Summary.File == nil:
		// The URL input was cleared.
		h.sessions.SetURL(id, "")
	}

	ticket, err := h.sessions.BeginSummary(id)
	switch {
	case errors.Is(err, session.ErrNoSelection):
	case err != nil:
		return NewInternalError("failed to start summary", err)
	default:
		h.runner.StartSummary(ticket)
	}
	return redirect(c, web.TabSummary)
}

// HandleState returns the session's form state as JSON, or msgpack when
// the client asks for it.
func (h *PageHandlerImpl) HandleState(c echo.Context) error {
	snap := h.sessions.Snapshot(sessionID(c))

	if !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEMsgpack) {
		return c.JSON(http.StatusOK, snap)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(snap); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, MIMEMsgpack, buf.Bytes())
}

// HandleReset drops the session's state and selected files.
func (h *PageHandlerImpl) HandleReset(c echo.Context) error {
	h.sessions.Release(sessionID(c))
	return redirect(c, web.NormalizeTab(c.QueryParam("tab")))
}

// saveUpload stores the multipart file field. It returns nil when the field
// is missing or empty.
func (h *PageHandlerImpl) saveUpload(c echo.Context, field string) (*models.FileRef, error) {
	fh, err := c.FormFile(field)
	if err != nil || fh.Size == 0 {
		return nil, nil
	}

	src, err := fh.Open()
	if err != nil {
		return nil, NewBadRequestError("failed to read upload", err)
	}
	defer src.Close()

	ref, err := h.store.Save(filepath.Base(fh.Filename), src)
	if err != nil {
		return nil, NewInternalError("failed to store upload", err)
	}
	return ref, nil
}

func redirect(c echo.Context, tab string) error {
	return c.Redirect(http.StatusSeeOther, "/?tab="+tab)
}
