// fake_service.go - In-process stand-in for the remote analysis service
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest captures what the fake service received.
type RecordedRequest struct {
	Path     string
	Fields   map[string]string // text fields
	Files    map[string][]byte // file fields
	Filename map[string]string // file field -> filename
}

// Reply is a canned response.
type Reply struct {
	Status int
	Body   any    // encoded as JSON unless Raw is set
	Raw    string // sent verbatim
}

// FakeService is an httptest server answering /analyze and /summarize with
// queued or default replies.
type FakeService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	replies  map[string][]Reply
	defaults map[string]Reply
	hold     chan struct{}
}

// NewFakeService starts a fake service; it is closed with the test.
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()
	f := &FakeService{
		replies: make(map[string][]Reply),
		defaults: map[string]Reply{
			"/analyze": {Status: http.StatusOK, Body: map[string]any{
				"caption":    "a dog on a couch",
				"detections": []map[string]any{},
			}},
			"/summarize": {Status: http.StatusOK, Body: map[string]any{"summary": "short summary"}},
		},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	t.Cleanup(f.Release)
	return f
}

// SetDefault sets the reply used when no queued reply is left for path.
func (f *FakeService) SetDefault(path string, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[path] = r
}

// Enqueue adds a one-shot reply for path.
func (f *FakeService) Enqueue(path string, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[path] = append(f.replies[path], r)
}

// Hold makes every request block until Release is called.
func (f *FakeService) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
}

// Release unblocks held requests.
func (f *FakeService) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold != nil {
		close(f.hold)
		f.hold = nil
	}
}

// Requests returns a copy of the recorded requests.
func (f *FakeService) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Hits returns how many requests reached path.
func (f *FakeService) Hits(path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeService) serve(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{
		Path:     r.URL.Path,
		Fields:   map[string]string{},
		Files:    map[string][]byte{},
		Filename: map[string]string{},
	}
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				rec.Fields[k] = v[0]
			}
		}
		for k, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			src, err := headers[0].Open()
			if err != nil {
				continue
			}
			data, _ := io.ReadAll(src)
			src.Close()
			rec.Files[k] = data
			rec.Filename[k] = headers[0].Filename
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	hold := f.hold
	reply, ok := f.defaults[r.URL.Path]
	if queued := f.replies[r.URL.Path]; len(queued) > 0 {
		reply, ok = queued[0], true
		f.replies[r.URL.Path] = queued[1:]
	}
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		http.NotFound(w, r)
		return
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if reply.Raw != "" {
		w.WriteHeader(status)
		io.WriteString(w, reply.Raw)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(reply.Body)
}
