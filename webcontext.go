package kubit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	HeaderRequestID = "X-Request-ID"
)

// WebContext is the per request context handed to handlers and middleware
type WebContext struct {
	context.Context

	app *Application

	request *http.Request
	writer  WrapResponseWriter

	route    *Route
	segments []string
	params   *RouteVars

	requestID string
	logger    *logrus.Entry

	status   int
	rendered bool
	body     []byte

	mu     sync.RWMutex
	values map[string]any
}

// NewWebContext returns a new web context for the request, the request id
// is taken from X-Request-ID when present
func NewWebContext(app *Application, r *http.Request, w http.ResponseWriter) *WebContext {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var base *logrus.Logger
	if app != nil {
		base = app.Logger()
	} else {
		base = logrus.StandardLogger()
	}

	wctx := &WebContext{
		Context:   WithApplication(r.Context(), app),
		app:       app,
		request:   r,
		writer:    NewWrapResponseWriter(w),
		segments:  pathSegments(r.URL.Path),
		requestID: requestID,
		logger:    base.WithFields(requestLogfields(requestID, r)),
	}

	wctx.writer.Header().Set(HeaderRequestID, requestID)

	return wctx
}

// NewTestWebContext builds a WebContext on an application that is never booted,
// for unit tests of handlers and middleware
func NewTestWebContext(request *http.Request, writer http.ResponseWriter) *WebContext {
	return NewWebContext(NewApplication("", EnvironmentTest, Options{}), request, writer)
}

func (wctx *WebContext) Application() *Application     { return wctx.app }
func (wctx *WebContext) Request() *http.Request        { return wctx.request }
func (wctx *WebContext) Response() WrapResponseWriter  { return wctx.writer }
func (wctx *WebContext) ResponseHeaders() http.Header  { return wctx.writer.Header() }
func (wctx *WebContext) RequestHeaders() http.Header   { return wctx.request.Header }
func (wctx *WebContext) Route() *Route                 { return wctx.route }
func (wctx *WebContext) Path() string                  { return wctx.request.URL.Path }
func (wctx *WebContext) Query() url.Values             { return wctx.request.URL.Query() }
func (wctx *WebContext) QueryParam(key string) string  { return wctx.request.URL.Query().Get(key) }
func (wctx *WebContext) RequestID() string             { return wctx.requestID }
func (wctx *WebContext) Logger() *logrus.Entry         { return wctx.logger }
func (wctx *WebContext) AddHeader(key, value string)   { wctx.writer.Header().Add(key, value) }
func (wctx *WebContext) SetStatus(status int)          { wctx.status = status }
func (wctx *WebContext) Write(b []byte) (int, error)   { return wctx.writer.Write(b) }
func (wctx *WebContext) Param(name string) string      { return wctx.URLParams().Get(name) }

// Container returns the application container
func (wctx *WebContext) Container() *Container {
	if wctx.app == nil {
		return nil
	}
	return wctx.app.Container()
}

// URLParams returns the path variables of the matched route
func (wctx *WebContext) URLParams() *RouteVars {
	if wctx.params == nil {
		wctx.params = routeVariables(wctx.route, wctx.segments)
	}
	return wctx.params
}

// Marshal decodes the json request body into out
func (wctx *WebContext) Marshal(out any) error {
	return json.Unmarshal(wctx.RequestBody(), out)
}

// RequestBody return the request body, it can be read more than once
func (wctx *WebContext) RequestBody() []byte {
	if wctx.body != nil {
		return wctx.body
	}

	if wctx.request.Body == nil {
		wctx.body = []byte{}
		return wctx.body
	}

	b, _ := io.ReadAll(wctx.request.Body)
	wctx.request.Body = io.NopCloser(bytes.NewBuffer(b))
	wctx.body = b
	return b
}

// Set stores a request scoped value (IE: the i18n formatter)
func (wctx *WebContext) Set(key string, value any) {
	wctx.mu.Lock()
	defer wctx.mu.Unlock()

	if wctx.values == nil {
		wctx.values = make(map[string]any)
	}
	wctx.values[key] = value
}

func (wctx *WebContext) Get(key string) (any, bool) {
	wctx.mu.RLock()
	defer wctx.mu.RUnlock()

	v, ok := wctx.values[key]
	return v, ok
}

// WithLogger replaces the request logger with one carrying extra fields
func (wctx *WebContext) WithLogger(fields logrus.Fields) *WebContext {
	wctx.logger = wctx.logger.WithFields(fields)
	return wctx
}

func requestLogfields(requestID string, r *http.Request) logrus.Fields {
	logFields := make(logrus.Fields, 10)
	logFields["ts"] = time.Now().UTC().Format(time.RFC1123)
	logFields["http.proto"] = r.Proto
	logFields["http.request_id"] = requestID
	logFields["http.method"] = r.Method
	logFields["http.useragent"] = r.UserAgent()
	logFields["http.url_details.path"] = r.URL.Path
	logFields["http.url_details.host"] = r.Host
	logFields["http.url_details.queryString"] = r.URL.RawQuery

	logFields["http.url_details.schema"] = SchemeHTTP
	if r.TLS != nil {
		logFields["http.url_details.schema"] = SchemeHTTPS
	}

	return logFields
}
