package kubit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
)

// TestHarness provides a structured way to test kubit applications
// it handles application setup and request routing in an isolated manner
type TestHarness struct {
	App *Application
}

// NewTestHarness boots a test application with the provided options
func NewTestHarness(appRoot string, options Options) (*TestHarness, error) {
	app, err := NewTestApplication(appRoot, options)
	if err != nil {
		return nil, err
	}
	return &TestHarness{App: app}, nil
}

// Get creates a GET request builder
func (h *TestHarness) Get(path string) *RequestBuilder {
	return h.newRequest(http.MethodGet, path)
}

// Post creates a POST request builder
func (h *TestHarness) Post(path string) *RequestBuilder {
	return h.newRequest(http.MethodPost, path)
}

// Put creates a PUT request builder
func (h *TestHarness) Put(path string) *RequestBuilder {
	return h.newRequest(http.MethodPut, path)
}

// Patch creates a PATCH request builder
func (h *TestHarness) Patch(path string) *RequestBuilder {
	return h.newRequest(http.MethodPatch, path)
}

// Delete creates a DELETE request builder
func (h *TestHarness) Delete(path string) *RequestBuilder {
	return h.newRequest(http.MethodDelete, path)
}

// Request creates a builder for any method
func (h *TestHarness) Request(method, path string) *RequestBuilder {
	return h.newRequest(method, path)
}

func (h *TestHarness) newRequest(method, path string) *RequestBuilder {
	return &RequestBuilder{
		harness: h,
		method:  method,
		path:    path,
		headers: make(http.Header),
	}
}

// RequestBuilder provides a fluent API for building test requests
type RequestBuilder struct {
	harness *TestHarness
	method  string
	path    string
	body    any
	headers http.Header
}

// WithHeader adds a header to the request
func (rb *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// WithBody sets the request body
func (rb *RequestBuilder) WithBody(body any) *RequestBuilder {
	rb.body = body
	return rb
}

// WithJSON sets the request body and Content-Type header
func (rb *RequestBuilder) WithJSON(body any) *RequestBuilder {
	rb.body = body
	rb.headers.Set("Content-Type", "application/json")
	return rb
}

// Send executes the request and returns the response
func (rb *RequestBuilder) Send() *TestResponse {
	var bodyReader io.Reader
	switch b := rb.body.(type) {
	case nil:
	case []byte:
		bodyReader = bytes.NewBuffer(b)
	case string:
		bodyReader = bytes.NewBufferString(b)
	default:
		encoded, _ := json.Marshal(b)
		bodyReader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(rb.method, rb.path, bodyReader)
	for k, v := range rb.headers {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	RouteRequest(rb.harness.App, req, w)

	return &TestResponse{Recorder: w}
}

// TestResponse wraps httptest.ResponseRecorder with helper methods
type TestResponse struct {
	Recorder *httptest.ResponseRecorder
}

// Status returns the HTTP status code
func (r *TestResponse) Status() int {
	return r.Recorder.Code
}

// Body returns the response body as a string
func (r *TestResponse) Body() string {
	return r.Recorder.Body.String()
}

// Unmarshal unmarshals the response body into the provided interface
func (r *TestResponse) Unmarshal(v any) error {
	return json.Unmarshal(r.Recorder.Body.Bytes(), v)
}

// Header returns the response headers
func (r *TestResponse) Header() http.Header {
	return r.Recorder.Header()
}

// AssertStatus checks if the status code matches the expected value
// Returns self for chaining
func (r *TestResponse) AssertStatus(t TestingT, expected int) *TestResponse {
	if r.Recorder.Code != expected {
		t.Errorf("Expected status %d, got %d", expected, r.Recorder.Code)
	}
	return r
}

// AssertBodyContains checks if the response body contains the expected string
func (r *TestResponse) AssertBodyContains(t TestingT, expected string) *TestResponse {
	body := r.Recorder.Body.String()
	if !strings.Contains(body, expected) {
		t.Errorf("Expected body to contain %q, got: %s", expected, body)
	}
	return r
}

// AssertHeader checks if a header matches the expected value
func (r *TestResponse) AssertHeader(t TestingT, key, expected string) *TestResponse {
	actual := r.Recorder.Header().Get(key)
	if actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
	return r
}

// TestingT is a minimal interface for testing (compatible with *testing.T)
type TestingT interface {
	Errorf(format string, args ...any)
}
