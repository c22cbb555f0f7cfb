// Package relay forwards a backend Server-Sent-Events body to a client.
//
// Framing is raw passthrough: every non-blank backend line is written as
// "<line>\n" and every blank line as "\n", so the backend's event
// boundaries reach the client unchanged. Lines are flushed one at a time.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gaspardpetit/chatfront/internal/metrics"
)

// SetHeaders declares an uncached, unbuffered event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// WriteError writes one synthetic terminal event
// `data: {"type":"error","error":msg}` and flushes it.
func WriteError(w io.Writer, msg string) error {
	b, err := json.Marshal(errorEvent{Type: "error", Error: msg})
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, "\n\n"...)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	flush(w)
	return nil
}

// Summary describes a finished relay.
type Summary struct {
	// Lines is the number of non-blank lines forwarded.
	Lines int
	// Events is the number of event terminators forwarded.
	Events int
	// Dropped counts malformed or over-long lines that were skipped.
	Dropped int
	// ReadErr is set when the backend body failed before EOF.
	ReadErr error
	// WriteErr is set when the client could not be written to.
	WriteErr error
	// ErrorSent reports that a synthetic error event closed the stream.
	ErrorSent bool
}

// Options tunes Stream.
type Options struct {
	MaxLine int
}

// Stream copies src to w line by line until src ends, src fails or the
// client goes away. ctx is the client request context; when the backend
// fails while the client is still connected a best-effort error event is
// appended.
func Stream(ctx context.Context, w io.Writer, src io.Reader, opts Options) Summary {
	var sum Summary
	defer func() {
		metrics.AddStreamLines("forwarded", sum.Lines)
		metrics.AddStreamLines("dropped", sum.Dropped)
	}()

	lr := NewLineReader(src, opts.MaxLine)
	midEvent := false
	out := make([]byte, 0, 512)
	for {
		line, err := lr.Next()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				sum.Dropped++
				continue
			}
			if errors.Is(err, io.EOF) {
				break
			}
			sum.ReadErr = err
			if ctx.Err() == nil {
				if midEvent {
					_, _ = w.Write([]byte("\n"))
				}
				if WriteError(w, "Stream interrupted: "+err.Error()) == nil {
					sum.ErrorSent = true
					metrics.RecordStreamError(streamErrReason(err))
				}
			}
			return sum
		}
		if len(line) == 0 {
			out = append(out[:0], '\n')
			midEvent = false
			sum.Events++
		} else {
			if !utf8.Valid(line) {
				sum.Dropped++
				continue
			}
			out = append(append(out[:0], line...), '\n')
			midEvent = true
			sum.Lines++
		}
		if _, err := w.Write(out); err != nil {
			sum.WriteErr = err
			return sum
		}
		flush(w)
	}
	if midEvent {
		// Backend ended without a trailing blank line; terminate the last
		// event so the client dispatches it.
		if _, err := w.Write([]byte("\n")); err != nil {
			sum.WriteErr = err
			return sum
		}
		sum.Events++
		flush(w)
	}
	return sum
}

func streamErrReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "interrupted"
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
