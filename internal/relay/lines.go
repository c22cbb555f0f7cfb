package relay

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLine bounds a single backend line, terminator included.
const DefaultMaxLine = 1 << 20

// ErrLineTooLong is returned by LineReader.Next for a line exceeding the
// limit. The line has been consumed and reading may continue.
var ErrLineTooLong = errors.New("relay: line too long")

// LineReader yields one physical line at a time while holding at most one
// line in memory.
type LineReader struct {
	br  *bufio.Reader
	max int
	buf []byte
}

// NewLineReader reads from r with the given per-line limit; max <= 0 uses
// DefaultMaxLine.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = DefaultMaxLine
	}
	size := 4096
	if max < size {
		size = max
	}
	return &LineReader{br: bufio.NewReaderSize(r, size), max: max}
}

// Next returns the next line without its LF or CRLF terminator. The slice
// is only valid until the following call. A final line without terminator
// is returned before io.EOF. A read error other than EOF discards any
// partial line.
func (l *LineReader) Next() ([]byte, error) {
	l.buf = l.buf[:0]
	tooLong := false
	sawData := false
	for {
		frag, err := l.br.ReadSlice('\n')
		if len(frag) > 0 {
			sawData = true
			if !tooLong {
				if len(l.buf)+len(frag) > l.max {
					tooLong = true
					l.buf = l.buf[:0]
				} else {
					l.buf = append(l.buf, frag...)
				}
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) || !sawData {
				return nil, err
			}
		}
		break
	}
	if tooLong {
		return nil, ErrLineTooLong
	}
	line := l.buf
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}
