package process

import (
	"bytes"
	"sync"
)

// LineWriter is an io.Writer that calls fn once per complete line.
// Call Flush after the producer finishes to emit a trailing partial line.
type LineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

// NewLineWriter returns a LineWriter that forwards lines to fn.
func NewLineWriter(fn func(string)) *LineWriter {
	return &LineWriter{fn: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		w.fn(line)
	}
	return len(p), nil
}

// Flush emits any buffered bytes that did not end in a newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	w.fn(w.buf.String())
	w.buf.Reset()
}
