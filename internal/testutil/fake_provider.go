// Package testutil holds shared fakes for package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Call records a single provider request.
type Call struct {
	Method    string
	Path      string
	Token     string
	RequestID string
	Body      map[string]float64
}

// FakeProvider is an in-process provider API that records calls for tests.
type FakeProvider struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []Call
	status  int
	devices any
	notify  chan Call
}

// NewFakeProvider starts a provider answering 200 to every request.
func NewFakeProvider() *FakeProvider {
	f := &FakeProvider{status: http.StatusOK, notify: make(chan Call, 64)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// SetStatus makes every later request answer with code.
func (f *FakeProvider) SetStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

// SetDevices sets the GET /devices response body.
func (f *FakeProvider) SetDevices(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = v
}

// Calls returns a copy of the recorded calls.
func (f *FakeProvider) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Notify receives every recorded call as it happens.
func (f *FakeProvider) Notify() <-chan Call {
	return f.notify
}

// serve records the request and answers with the configured status.
func (f *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	call := Call{
		Method:    r.Method,
		Path:      r.URL.EscapedPath(),
		Token:     strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		RequestID: r.Header.Get("X-Request-Id"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &call.Body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	status := f.status
	devices := f.devices
	f.mu.Unlock()

	select {
	case f.notify <- call:
	default:
	}

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && r.URL.Path == "/devices" {
		if devices == nil {
			devices = []any{}
		}
		_ = json.NewEncoder(w).Encode(devices)
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
