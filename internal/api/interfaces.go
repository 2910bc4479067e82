// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"io"

	"github.com/ai-playground/backend/internal/models"
	"github.com/ai-playground/backend/internal/session"
	"github.com/ai-playground/backend/internal/web"
	"github.com/labstack/echo/v4"
)

// PageHandler serves the server-rendered forms
type PageHandler interface {
	HandleIndex(c echo.Context) error
	HandleSelectImage(c echo.Context) error
	HandleImagePreview(c echo.Context) error
	HandleAnalyze(c echo.Context) error
	HandleSelectDocument(c echo.Context) error
	HandleSetURL(c echo.Context) error
	HandleSubmitSummary(c echo.Context) error
	HandleState(c echo.Context) error
	HandleReset(c echo.Context) error
}

// ProxyHandler exposes the remote service as a JSON API
type ProxyHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleSummarize(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Snapshot(id string) models.Snapshot
	View(id string) models.Snapshot
	SelectImage(id string, ref *models.FileRef)
	SelectDocument(id string, ref *models.FileRef)
	SetURL(id, url string)
	Alert(id string, form models.FormName, msg string)
	BeginImage(id string) (session.Ticket, error)
	BeginSummary(id string) (session.Ticket, error)
	Release(id string)
	Count() int
}

// Submitter starts background submissions
type Submitter interface {
	StartImage(t session.Ticket)
	StartSummary(t session.Ticket)
}

// PageRenderer writes the full page
type PageRenderer interface {
	RenderPage(w io.Writer, data web.PageData) error
}
