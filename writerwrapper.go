package kubit

import (
	"bufio"
	"io"
	"net"
	"net/http"
)

// WrapResponseWriter proxies an http.ResponseWriter, keeping the status and
// the amount of bytes written for the request logger
type WrapResponseWriter interface {
	http.ResponseWriter
	Status() int
	BytesWritten() int
	Written() bool
	Tee(io.Writer)
	Unwrap() http.ResponseWriter
}

// NewWrapResponseWriter wraps w, wrapping an already wrapped writer is a no-op
func NewWrapResponseWriter(w http.ResponseWriter) WrapResponseWriter {
	if ww, ok := w.(WrapResponseWriter); ok {
		return ww
	}
	return &responseWriter{ResponseWriter: w}
}

type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	code        int
	bytes       int
	tee         io.Writer
}

func (b *responseWriter) WriteHeader(code int) {
	if b.wroteHeader || (code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols) {
		return
	}

	b.code = code
	b.wroteHeader = true
	b.ResponseWriter.WriteHeader(code)
}

func (b *responseWriter) Write(buf []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}

	n, err := b.ResponseWriter.Write(buf)
	if b.tee != nil {
		_, teeErr := b.tee.Write(buf[:n])
		if err == nil {
			err = teeErr
		}
	}

	b.bytes += n
	return n, err
}

func (b *responseWriter) Status() int                 { return b.code }
func (b *responseWriter) BytesWritten() int           { return b.bytes }
func (b *responseWriter) Written() bool               { return b.wroteHeader }
func (b *responseWriter) Tee(w io.Writer)             { b.tee = w }
func (b *responseWriter) Unwrap() http.ResponseWriter { return b.ResponseWriter }

// Flush implements http.Flusher
func (b *responseWriter) Flush() {
	if f, ok := b.ResponseWriter.(http.Flusher); ok {
		if !b.wroteHeader {
			b.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Hijack implements http.Hijacker
func (b *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := b.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

var (
	_ http.Flusher       = &responseWriter{}
	_ http.Hijacker      = &responseWriter{}
	_ WrapResponseWriter = &responseWriter{}
)
