// Package analyzer is the HTTP client of the remote analysis and
// summarization service.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ai-playground/backend/internal/models"
	"golang.org/x/time/rate"
)

// Multipart field names expected by the service.
const (
	FieldImage = "image"
	FieldFile  = "file"
	FieldURL   = "url"
)

// maxResponseSize bounds how much of a response body is decoded.
const maxResponseSize = 64 << 20

// Service is what the rest of the server needs from the remote service.
type Service interface {
	Analyze(ctx context.Context, filename string, image io.Reader) (*models.AnalysisResult, error)
	Summarize(ctx context.Context, in models.SummaryInput) (*models.SummaryResult, error)
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	AnalyzePath   string
	SummarizePath string
	// HTTPClient defaults to a client without timeout; hang time is bounded
	// by the transport unless the caller's context says otherwise.
	HTTPClient *http.Client
	// RequestsPerSecond limits outbound requests. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the remote service.
type Client struct {
	analyzeURL   string
	summarizeURL string
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	analyzePath := opts.AnalyzePath
	if analyzePath == "" {
		analyzePath = "/analyze"
	}
	summarizePath := opts.SummarizePath
	if summarizePath == "" {
		summarizePath = "/summarize"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		analyzeURL:   base + analyzePath,
		summarizeURL: base + summarizePath,
		baseURL:      base,
		httpClient:   httpClient,
		limiter:      limiter,
	}
}

// Analyze sends one image to the analysis endpoint.
func (c *Client) Analyze(ctx context.Context, filename string, image io.Reader) (*models.AnalysisResult, error) {
	body, contentType, err := buildForm(func(w *multipart.Writer) error {
		return writeFile(w, FieldImage, filename, image)
	})
	if err != nil {
		return nil, err
	}

	status, raw, err := c.post(ctx, c.analyzeURL, body, contentType)
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ResponseError{StatusCode: status, Reason: fmt.Sprintf("decode response: %v", err)}
	}

	if result.Error != "" {
		return nil, &ServiceError{StatusCode: status, Message: result.Error}
	}
	if status >= http.StatusBadRequest {
		return nil, &ResponseError{StatusCode: status, Reason: "error status without error message"}
	}

	for i, d := range result.Detections {
		if err := d.Validate(); err != nil {
			return nil, &ResponseError{StatusCode: status, Reason: fmt.Sprintf("detection %d: %v", i, err)}
		}
	}
	if result.AnnotatedImage != "" {
		if _, err := base64.StdEncoding.DecodeString(result.AnnotatedImage); err != nil {
			return nil, &ResponseError{StatusCode: status, Reason: fmt.Sprintf("annotated_image: %v", err)}
		}
	}
	if result.Detections == nil {
		result.Detections = []models.Detection{}
	}

	return &result, nil
}

// Summarize sends a document or a URL to the summarization endpoint.
func (c *Client) Summarize(ctx context.Context, in models.SummaryInput) (*models.SummaryResult, error) {
	url := strings.TrimSpace(in.URL)
	if in.HasFile() == (url != "") {
		return nil, ErrNoInput
	}

	body, contentType, err := buildForm(func(w *multipart.Writer) error {
		if in.HasFile() {
			return writeFile(w, FieldFile, in.FileName, in.File)
		}
		return w.WriteField(FieldURL, url)
	})
	if err != nil {
		return nil, err
	}

	status, raw, err := c.post(ctx, c.summarizeURL, body, contentType)
	if err != nil {
		return nil, err
	}

	var result models.SummaryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ResponseError{StatusCode: status, Reason: fmt.Sprintf("decode response: %v", err)}
	}

	if result.Summary == "" {
		msg := result.Error
		if msg == "" {
			msg = "Failed to summarize"
		}
		return nil, &ServiceError{StatusCode: status, Message: msg}
	}

	return &result, nil
}

// CheckHealth reports whether the service answers HTTP at all.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "health check", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("analysis service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body *bytes.Buffer, contentType string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, &TransportError{Op: "wait for rate limit", Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: "read response", Err: err}
	}

	return resp.StatusCode, raw, nil
}

func buildForm(fill func(w *multipart.Writer) error) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := fill(writer); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field, filename string, r io.Reader) error {
	if filename == "" {
		filename = field
	}
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy %s data: %w", field, err)
	}
	return nil
}
