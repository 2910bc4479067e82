// handlers_proxy.go - JSON passthrough to the remote service
package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ProxyHandlerImpl implements the ProxyHandler interface
type ProxyHandlerImpl struct {
	service analyzer.Service
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler(service analyzer.Service) ProxyHandler {
	return &ProxyHandlerImpl{service: service}
}

// HandleAnalyze forwards the "image" upload and returns the analysis.
func (h *ProxyHandlerImpl) HandleAnalyze(c echo.Context) error {
	fh, err := c.FormFile(analyzer.FieldImage)
	if err != nil {
		return NewValidationError(analyzer.FieldImage)
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to read upload", err)
	}
	defer src.Close()

	res, err := h.service.Analyze(c.Request().Context(), filepath.Base(fh.Filename), src)
	if err != nil {
		return FromServiceCall(err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleSummarize forwards exactly one of a "file" upload or a "url" field.
func (h *ProxyHandlerImpl) HandleSummarize(c echo.Context) error {
	fh, ferr := c.FormFile(analyzer.FieldFile)
	url := strings.TrimSpace(c.FormValue(analyzer.FieldURL))
	hasFile := ferr == nil

	if hasFile == (url != "") {
		return NewBadRequestError("provide exactly one of file or url", nil)
	}

	in := models.SummaryInput{URL: url}
	if hasFile {
		src, err := fh.Open()
		if err != nil {
			return NewBadRequestError("failed to read upload", err)
		}
		defer src.Close()
		in = models.SummaryInput{FileName: filepath.Base(fh.Filename), File: src}
	}

	res, err := h.service.Summarize(c.Request().Context(), in)
	if err != nil {
		return FromServiceCall(err)
	}
	return c.JSON(http.StatusOK, res)
}
