package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func TestStreamPassthroughOrder(t *testing.T) {
	src := "data: {\"token\":\"a\"}\n\ndata: {\"token\":\"b\"}\n\n"
	rec := newFlushRecorder()
	sum := Stream(context.Background(), rec, strings.NewReader(src), Options{})
	if got := rec.Body.String(); got != src {
		t.Fatalf("body %q; want %q", got, src)
	}
	if sum.Lines != 2 || sum.Events != 2 || sum.Dropped != 0 || sum.ErrorSent {
		t.Fatalf("summary %+v", sum)
	}
	if rec.flushes != 4 {
		t.Fatalf("flushes = %d; want one per line", rec.flushes)
	}
	if strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Fatalf("unexpected error event")
	}
}

func TestStreamManyEventsInOrder(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&src, "data: {\"token\":\"%d\"}\n\n", i)
	}
	rec := newFlushRecorder()
	// One byte per read exercises partial-line reassembly.
	sum := Stream(context.Background(), rec, iotest.OneByteReader(strings.NewReader(src.String())), Options{})
	if rec.Body.String() != src.String() {
		t.Fatalf("relayed stream differs from source")
	}
	if sum.Events != 500 {
		t.Fatalf("events = %d", sum.Events)
	}
}

func TestStreamMultiLineEventsAndComments(t *testing.T) {
	src := "event: token\nid: 1\ndata: {\"token\":\"a\"}\n\n: keep-alive\n\n"
	rec := newFlushRecorder()
	Stream(context.Background(), rec, strings.NewReader(src), Options{})
	if rec.Body.String() != src {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestStreamNormalizesCRLF(t *testing.T) {
	rec := newFlushRecorder()
	Stream(context.Background(), rec, strings.NewReader("data: a\r\n\r\ndata: b\r\n\r\n"), Options{})
	if got := rec.Body.String(); got != "data: a\n\ndata: b\n\n" {
		t.Fatalf("body %q", got)
	}
}

func TestStreamDropsMalformedLines(t *testing.T) {
	src := "data: {\"token\":\"a\"}\n\n" + "data: \xff\xfe\n\n" + "data: {\"token\":\"b\"}\n\n"
	rec := newFlushRecorder()
	sum := Stream(context.Background(), rec, strings.NewReader(src), Options{})
	want := "data: {\"token\":\"a\"}\n\n\ndata: {\"token\":\"b\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body %q; want %q", got, want)
	}
	if sum.Dropped != 1 || sum.ErrorSent {
		t.Fatalf("summary %+v", sum)
	}
}

func TestStreamDropsOverlongLines(t *testing.T) {
	long := "data: " + strings.Repeat("x", 200)
	src := "data: a\n\n" + long + "\n\ndata: b\n\n"
	rec := newFlushRecorder()
	sum := Stream(context.Background(), rec, strings.NewReader(src), Options{MaxLine: 64})
	if strings.Contains(rec.Body.String(), "xxxx") {
		t.Fatalf("overlong line forwarded")
	}
	if !strings.HasSuffix(rec.Body.String(), "data: b\n\n") {
		t.Fatalf("relay stopped after overlong line: %q", rec.Body.String())
	}
	if sum.Dropped != 1 {
		t.Fatalf("dropped = %d", sum.Dropped)
	}
}

func TestStreamTerminatesUnfinishedEvent(t *testing.T) {
	rec := newFlushRecorder()
	sum := Stream(context.Background(), rec, strings.NewReader("data: a\n\ndata: b"), Options{})
	if got := rec.Body.String(); got != "data: a\n\ndata: b\n\n" {
		t.Fatalf("body %q", got)
	}
	if sum.Events != 2 {
		t.Fatalf("events = %d", sum.Events)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestStreamReadErrorSendsErrorEvent(t *testing.T) {
	src := &failingReader{data: []byte("data: {\"token\":\"a\"}\n\ndata: {\"tok"), err: errors.New("connection reset")}
	rec := newFlushRecorder()
	sum := Stream(context.Background(), rec, src, Options{})
	if !sum.ErrorSent || sum.ReadErr == nil {
		t.Fatalf("summary %+v", sum)
	}
	events := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(events) != 2 {
		t.Fatalf("events %q", events)
	}
	var ev struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(events[1], "data: ")), &ev); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if ev.Type != "error" || !strings.Contains(ev.Error, "connection reset") {
		t.Fatalf("error event %+v", ev)
	}
}

func TestStreamMidEventErrorClosesEventFirst(t *testing.T) {
	src := &failingReader{data: []byte("event: token\n"), err: errors.New("boom")}
	rec := newFlushRecorder()
	Stream(context.Background(), rec, src, Options{})
	if !strings.HasPrefix(rec.Body.String(), "event: token\n\ndata: {\"type\":\"error\"") {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestStreamClientGoneSkipsErrorEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &failingReader{data: []byte("data: a\n\n"), err: context.Canceled}
	rec := newFlushRecorder()
	sum := Stream(ctx, rec, src, Options{})
	if sum.ErrorSent {
		t.Fatalf("error event sent to a departed client")
	}
	if rec.Body.String() != "data: a\n\n" {
		t.Fatalf("body %q", rec.Body.String())
	}
}

type brokenWriter struct{ writes int }

func (b *brokenWriter) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("broken pipe")
}

func TestStreamStopsOnWriteError(t *testing.T) {
	w := &brokenWriter{}
	sum := Stream(context.Background(), w, strings.NewReader("data: a\n\ndata: b\n\n"), Options{})
	if sum.WriteErr == nil || w.writes != 1 {
		t.Fatalf("summary %+v writes %d", sum, w.writes)
	}
}

// chanWriter reports every write so the test can observe delivery timing.
type chanWriter struct{ ch chan string }

func (c chanWriter) Write(p []byte) (int, error) {
	c.ch <- string(p)
	return len(p), nil
}

func TestStreamDeliversBeforeBackendFinishes(t *testing.T) {
	pr, pw := io.Pipe()
	w := chanWriter{ch: make(chan string, 8)}
	done := make(chan Summary, 1)
	go func() { done <- Stream(context.Background(), w, pr, Options{}) }()

	if _, err := pw.Write([]byte("data: first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-w.ch:
		if got != "data: first\n" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("line not relayed while backend stream still open")
	}
	_ = pw.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not finish after backend closed")
	}
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteError(&buf, `Backend error 502: "bad"`); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	want := `data: {"type":"error","error":"Backend error 502: \"bad\""}` + "\n\n"
	if buf.String() != want {
		t.Fatalf("got %q; want %q", buf.String(), want)
	}
}

func TestSetHeaders(t *testing.T) {
	h := http.Header{}
	SetHeaders(h)
	for k, v := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		if h.Get(k) != v {
			t.Fatalf("%s = %q; want %q", k, h.Get(k), v)
		}
	}
}
