package process

import (
	"bytes"
	"strings"
	"sync"

	"cinemate/internal/domain"
)

// lineRing keeps the most recent output lines, dropping the oldest when full.
type lineRing struct {
	mu      sync.Mutex
	lines   []domain.CameraOutput
	next    int
	full    bool
	written int64 // total lines ever added (including dropped)
}

func newLineRing(max int) *lineRing {
	if max <= 0 {
		max = 1
	}
	return &lineRing{lines: make([]domain.CameraOutput, max)}
}

func (r *lineRing) add(l domain.CameraOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = l
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.written++
}

// last returns up to n lines, oldest first. n <= 0 returns everything held.
func (r *lineRing) last(n int) []domain.CameraOutput {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]domain.CameraOutput, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// TotalWritten returns the number of lines ever added.
func (r *lineRing) TotalWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// lineWriter is an io.Writer that splits a byte stream into lines. The
// partial line is held until its newline arrives or Flush is called; lines
// longer than max are emitted in max-sized pieces.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	max  int
	emit func(line string)
}

func newLineWriter(max int, emit func(string)) *lineWriter {
	return &lineWriter{max: max, emit: emit}
}

// Write implements io.Writer. Thread-safe.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimSuffix(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	for w.max > 0 && len(w.buf) >= w.max {
		w.emit(string(w.buf[:w.max]))
		w.buf = w.buf[w.max:]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(strings.TrimSuffix(string(w.buf), "\r"))
		w.buf = nil
	}
}
