package kubit

import (
	"encoding/json"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/kubit-go/kubit/errors"
	"github.com/kubit-go/kubit/health"
	"github.com/kubit-go/kubit/validation"
)

type FormatOption string

type marshalFunc func(any) ([]byte, error)

type Marshaler struct {
	Handler     marshalFunc
	ContentType string
}

var (
	FormatTypeJSON FormatOption = "JSON"
	FormatTypeXML  FormatOption = "XML"
	FormatTypeText FormatOption = "TEXT"
	FormatTypeHTML FormatOption = "HTML"
	FormatTypeData FormatOption = "DATA"

	ErrorInvalidType = fmt.Errorf("invalid response type provided")

	DoubleRenderError = errors.Error{Key: "ERROR.DOUBLE_RENDER_ERROR", Status: http.StatusInternalServerError}

	marshalers = map[FormatOption]Marshaler{
		FormatTypeJSON: {json.Marshal, "application/json"},
		FormatTypeXML:  {xml.Marshal, "application/xml"},
		FormatTypeData: {marshalData, ""},
		FormatTypeText: {marshalText, "text/plain; charset=utf-8"},
		FormatTypeHTML: {marshalText, "text/html; charset=utf-8"},
	}
)

func RegisterMarshaler(tpe FormatOption, marshal marshalFunc, contentType string) {
	marshalers[tpe] = Marshaler{marshal, contentType}
}

func (wctx *WebContext) Render(format FormatOption, data any) { Render(wctx, format, data) }
func (wctx *WebContext) RenderJSON(data any)                  { Render(wctx, FormatTypeJSON, data) }
func (wctx *WebContext) RenderXML(data any)                   { Render(wctx, FormatTypeXML, data) }
func (wctx *WebContext) RenderData(data []byte)               { Render(wctx, FormatTypeData, data) }
func (wctx *WebContext) RenderText(data string)               { Render(wctx, FormatTypeText, data) }
func (wctx *WebContext) RenderHTML(data string)               { Render(wctx, FormatTypeHTML, data) }

// RenderError renders err as json using the status of keyed errors,
// validation errors render as 422 with their fields
func (wctx *WebContext) RenderError(err error) { Render(wctx, FormatTypeJSON, err) }

// Render marshals data with the format marshaler, rendering twice is a bug
// and is logged rather than written
func Render(wctx *WebContext, format FormatOption, data any) {
	if wctx.rendered {
		wctx.Logger().Error(DoubleRenderError.NewError(fmt.Errorf("render called twice")))
		return
	}
	wctx.rendered = true

	marshaler, found := marshalers[format]
	if !found {
		wctx.Logger().Errorf("invalid format provided (format: %s)", format)
		wctx.Response().WriteHeader(http.StatusInternalServerError)
		return
	}

	renderResponse(wctx, marshaler, data)
}

func marshalData(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return []byte{}, ErrorInvalidType
}

func marshalText(v any) ([]byte, error) {
	switch r := v.(type) {
	case string:
		return []byte(r), nil
	case []byte:
		return r, nil
	case error:
		return []byte(r.Error()), nil
	}
	return []byte{}, ErrorInvalidType
}

func renderResponse(wctx *WebContext, marshal Marshaler, res any) {
	status := wctx.status
	l := wctx.Logger()

	if err, ok := res.(error); ok {
		res, status = errorResponse(err)

		var ae errors.Error
		if stderrors.As(err, &ae) {
			l = l.WithFields(ae.ToLogFields())
		}

		if status >= http.StatusInternalServerError {
			l.Error(err)
		}
	}

	if status == 0 {
		status = http.StatusOK
	}

	if wctx.Request().Method == http.MethodHead {
		wctx.Response().WriteHeader(status)
		return
	}

	var b []byte
	if d, ok := res.([]byte); ok {
		b = d
	} else {
		d, mErr := marshal.Handler(res)
		if mErr != nil {
			wctx.Response().WriteHeader(http.StatusInternalServerError)
			l.Error(mErr.Error())
			return
		}
		b = d
	}

	ct := marshal.ContentType
	if ct == "" {
		ct = http.DetectContentType(b)
	}

	wctx.ResponseHeaders().Set("Content-Type", ct)
	wctx.Response().WriteHeader(status)

	if _, err := wctx.Write(b); err != nil {
		l.Errorf("error writing response: %v", err)
	}
}

func errorResponse(err error) (any, int) {
	var ve *validation.ValidationError
	if stderrors.As(err, &ve) {
		ae := errors.Unwrap(ve.Keyed())
		return ae, ae.Status
	}

	ae := errors.Unwrap(err)
	return ae, errors.StatusOf(ae)
}

func renderHealth(wctx *WebContext) {
	report := wctx.Application().HealthCheck().Report(wctx)

	if !report.Healthy {
		wctx.SetStatus(http.StatusServiceUnavailable)
	}

	wctx.RenderJSON(struct {
		health.FullReport
		IsLive bool `json:"isLive"`
	}{report, wctx.Application().HealthCheck().IsLive()})
}
