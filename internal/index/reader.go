// Package index loads line-delimited work files into a document store.
package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxLineBytes bounds a single input line.
const MaxLineBytes = 16 << 20

// ErrLineTooLong marks a line longer than the reader's limit. The rest of the
// line is discarded and reading continues with the next one.
var ErrLineTooLong = errors.New("line exceeds size limit")

// Line is one non-blank input line and its 1-based position in the file.
type Line struct {
	Number int
	Data   []byte
}

// Reader yields non-blank lines from line-delimited JSON input.
type Reader struct {
	br      *bufio.Reader
	maxLine int
	buf     []byte
	number  int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return newReaderSize(r, MaxLineBytes)
}

func newReaderSize(r io.Reader, maxLine int) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024), maxLine: maxLine}
}

// Next returns the next non-blank line, or io.EOF when the input is done.
// A line over the size limit comes back as a *LineError wrapping
// ErrLineTooLong; the caller may keep reading after it. Any other error is
// an I/O failure. The returned Data is only valid until the following call.
func (r *Reader) Next() (Line, error) {
	for {
		data, tooLong, err := r.readLine()
		if err != nil {
			return Line{}, err
		}
		r.number++
		if tooLong {
			return Line{Number: r.number}, &LineError{Line: r.number, Err: ErrLineTooLong}
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		return Line{Number: r.number, Data: data}, nil
	}
}

// readLine returns one line without its newline. An overlong line is read to
// its end without being buffered.
func (r *Reader) readLine() ([]byte, bool, error) {
	r.buf = r.buf[:0]
	var tooLong, read bool
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if err == nil {
			chunk = chunk[:len(chunk)-1]
		}
		if !tooLong {
			if len(r.buf)+len(chunk) > r.maxLine {
				tooLong = true
				r.buf = r.buf[:0]
			} else {
				r.buf = append(r.buf, chunk...)
			}
		}

		switch {
		case err == nil:
			return r.buf, tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !read {
				return nil, false, io.EOF
			}
			return r.buf, tooLong, nil
		default:
			return nil, false, fmt.Errorf("read line %d: %w", r.number+1, err)
		}
	}
}
