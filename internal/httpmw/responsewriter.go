package httpmw

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/ephemera/internal/xerrors"
)

// recordingWriter counts what a handler sends and times how long the
// client takes to accept it.
type recordingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
	timing writeTiming
}

// writeTiming backs the response.write child span. The span opens on the
// first WriteHeader or Write and only exists under a recording parent.
type writeTiming struct {
	ctx     context.Context
	reqAt   time.Time
	span    trace.Span
	began   bool
	ttfb    time.Duration
	blocked time.Duration
	err     error
}

func newRecordingWriter(ctx context.Context, w http.ResponseWriter, reqAt time.Time) *recordingWriter {
	return &recordingWriter{ResponseWriter: w, timing: writeTiming{ctx: ctx, reqAt: reqAt}}
}

func (t *writeTiming) begin() {
	if t.began {
		return
	}
	t.began = true
	t.ttfb = time.Since(t.reqAt)

	if t.ctx == nil {
		return
	}
	parent := trace.SpanFromContext(t.ctx)
	if !parent.IsRecording() {
		return
	}
	t.ctx, t.span = parent.TracerProvider().Tracer("ephemera/httpmw").Start(t.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", t.ttfb.Seconds())))
}

func (t *writeTiming) end(status int, bytes int64) {
	if t.span == nil {
		return
	}
	t.span.SetAttributes(
		attribute.Int("http.response.status_code", status),
		attribute.Int64("http.response.body.size", bytes),
		attribute.Float64("http.server.write.block_seconds", t.blocked.Seconds()),
	)
	if t.err != nil {
		t.span.RecordError(t.err)
		t.span.SetStatus(codes.Error, t.err.Error())
	}
	t.span.End()
	t.span = nil
}

// code is the status the client saw. Handlers that never write get 200.
func (rw *recordingWriter) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *recordingWriter) finish() { rw.timing.end(rw.code(), rw.bytes) }

func (rw *recordingWriter) WriteHeader(code int) {
	rw.timing.begin()
	if rw.status == 0 {
		rw.status = code
	}
	at := time.Now()
	rw.ResponseWriter.WriteHeader(code)
	rw.timing.blocked += time.Since(at)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.timing.begin()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	at := time.Now()
	n, err := rw.ResponseWriter.Write(b)
	rw.timing.blocked += time.Since(at)
	rw.bytes += int64(n)
	if err != nil && rw.timing.err == nil {
		rw.timing.err = err
	}
	return n, err
}

func (rw *recordingWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *recordingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, xerrors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recordingWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
