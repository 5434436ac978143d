// Package testutil provides testing utilities for the bugbug client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines one scripted response of the mock bugbug service.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBugbug is a scriptable bugbug server for tests.
//
// Every path has a queue of responses. Each request pops the head of the
// queue; the last response repeats once the queue is down to one entry.
// Paths without a script answer 404.
type MockBugbug struct {
	server  *httptest.Server
	mu      sync.Mutex
	scripts map[string][]MockResponse
	counts  map[string]int

	requestCount      int
	lastRequestHeader http.Header
}

// NewMockBugbug starts a new mock server.
func NewMockBugbug() *MockBugbug {
	mock := &MockBugbug{
		scripts: make(map[string][]MockResponse),
		counts:  make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockBugbug) URL() string {
	return m.server.URL
}

// Client returns a plain HTTP client for the mock server.
func (m *MockBugbug) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockBugbug) Close() {
	m.server.Close()
}

// Reset clears scripts and counters.
func (m *MockBugbug) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = make(map[string][]MockResponse)
	m.counts = make(map[string]int)
	m.requestCount = 0
	m.lastRequestHeader = nil
}

// Script replaces the response queue of path.
func (m *MockBugbug) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append([]MockResponse(nil), responses...)
}

// ScriptSchedules scripts the schedules endpoint of a push: pending 202
// responses followed by a 200 carrying body.
func (m *MockBugbug) ScriptSchedules(branch, rev string, pending int, body string) {
	responses := make([]MockResponse, 0, pending+1)
	for i := 0; i < pending; i++ {
		responses = append(responses, NewProcessingResponse())
	}
	responses = append(responses, NewScheduleResponse(body))
	m.Script(SchedulesPath(branch, rev), responses...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockBugbug) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockBugbug) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockBugbug) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func (m *MockBugbug) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.counts[r.URL.Path]++
	m.lastRequestHeader = r.Header.Clone()

	queue, ok := m.scripts[r.URL.Path]
	var resp MockResponse
	if ok && len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			m.scripts[r.URL.Path] = queue[1:]
		}
	}
	m.mu.Unlock()

	if !ok || len(queue) == 0 {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// SchedulesPath returns the bugbug path of a push's schedules.
func SchedulesPath(branch, rev string) string {
	return fmt.Sprintf("/push/%s/%s/schedules", branch, rev)
}

// NewProcessingResponse creates the 202 bugbug returns while it computes.
func NewProcessingResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusAccepted,
		Body:       `{"ready": false}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewScheduleResponse creates a 200 response carrying body.
func NewScheduleResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewStatusResponse creates an empty response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{StatusCode: status}
}
