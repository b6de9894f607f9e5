package process

import (
	"bytes"
	"io"
	"sync"
)

// maxPartialLine caps how much of an unterminated line is held back.
const maxPartialLine = 64 * 1024

// LineWriter forwards whole lines to an underlying writer as soon as they
// are complete, optionally prefixing each one. Each line is a single Write
// on the destination, so lines from several children do not interleave.
type LineWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix []byte
	buf    []byte
}

// NewLineWriter returns a LineWriter writing to out.
func NewLineWriter(out io.Writer, prefix string) *LineWriter {
	return &LineWriter{out: out, prefix: []byte(prefix)}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf = append(w.buf, p...)
			if len(w.buf) >= maxPartialLine {
				if err := w.emit(nil); err != nil {
					return n, err
				}
			}
			break
		}
		if err := w.emit(p[:i+1]); err != nil {
			return n, err
		}
		p = p[i+1:]
	}
	return n, nil
}

// Flush writes any buffered partial line, terminated with a newline.
func (w *LineWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return nil
	}
	return w.emit([]byte{'\n'})
}

func (w *LineWriter) emit(tail []byte) error {
	line := make([]byte, 0, len(w.prefix)+len(w.buf)+len(tail)+1)
	line = append(line, w.prefix...)
	line = append(line, w.buf...)
	line = append(line, tail...)
	if tail == nil {
		line = append(line, '\n')
	}
	w.buf = w.buf[:0]

	_, err := w.out.Write(line)
	return err
}
