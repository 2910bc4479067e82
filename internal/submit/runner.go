// Package submit runs form submissions against the remote service in the
// background and hands the outcome back to the session.
package submit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/models"
	"github.com/ai-playground/backend/internal/session"
)

// Sessions receives submission outcomes.
type Sessions interface {
	CompleteImage(id string, seq uint64, res *models.AnalysisResult, err error) bool
	CompleteSummary(id string, seq uint64, res *models.SummaryResult, err error) bool
}

// Files opens stored selections.
type Files interface {
	Open(id string) (io.ReadCloser, *models.FileRef, error)
}

// Runner executes exchanges asynchronously.
type Runner struct {
	service  analyzer.Service
	files    Files
	sessions Sessions
	timeout  time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a runner. A zero timeout leaves requests bounded only by
// the ticket context and the transport.
func NewRunner(service analyzer.Service, files Files, sessions Sessions, timeout time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		service:  service,
		files:    files,
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

// StartImage analyzes the ticket's image in the background.
func (r *Runner) StartImage(t session.Ticket) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.guard(t, func(ctx context.Context) (any, error) {
			return r.analyze(ctx, t)
		})
		result, _ := res.(*models.AnalysisResult)
		r.finish(t, r.sessions.CompleteImage(t.SessionID, t.Seq, result, err), err)
	}()
}

// StartSummary summarizes the ticket's document or URL in the background.
func (r *Runner) StartSummary(t session.Ticket) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.guard(t, func(ctx context.Context) (any, error) {
			return r.summarize(ctx, t)
		})
		result, _ := res.(*models.SummaryResult)
		r.finish(t, r.sessions.CompleteSummary(t.SessionID, t.Seq, result, err), err)
	}()
}

// Wait blocks until every started submission has completed.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) analyze(ctx context.Context, t session.Ticket) (*models.AnalysisResult, error) {
	if t.File == nil {
		return nil, fmt.Errorf("no image in ticket")
	}
	rc, ref, err := r.files.Open(t.File.ID)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	return r.service.Analyze(ctx, ref.Name, rc)
}

func (r *Runner) summarize(ctx context.Context, t session.Ticket) (*models.SummaryResult, error) {
	if t.File == nil {
		return r.service.Summarize(ctx, models.SummaryInput{URL: t.URL})
	}

	rc, ref, err := r.files.Open(t.File.ID)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer rc.Close()

	return r.service.Summarize(ctx, models.SummaryInput{FileName: ref.Name, File: rc})
}

// guard applies the timeout, recovers panics and logs the exchange.
func (r *Runner) guard(t session.Ticket, fn func(ctx context.Context) (any, error)) (res any, err error) {
	ctx := t.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	r.log.Info("submission started", "session", t.SessionID, "form", t.Form, "seq", t.Seq)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("submission panicked", "session", t.SessionID, "form", t.Form, "panic", p)
			res, err = nil, fmt.Errorf("submission panicked: %v", p)
		}
		r.log.Info("submission finished",
			"session", t.SessionID,
			"form", t.Form,
			"seq", t.Seq,
			"duration", time.Since(start),
			"ok", err == nil)
	}()

	return fn(ctx)
}

func (r *Runner) finish(t session.Ticket, applied bool, err error) {
	if !applied {
		r.log.Debug("submission outcome discarded", "session", t.SessionID, "form", t.Form, "seq", t.Seq)
		return
	}
	if err != nil && !analyzer.IsServiceError(err) {
		r.log.Warn("submission failed", "session", t.SessionID, "form", t.Form, "error", err)
	}
}
