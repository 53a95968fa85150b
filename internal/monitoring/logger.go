package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Volume computations push their progress lines here
// unless the caller supplies its own sink.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}

// Discard is a printf-style sink that drops everything.
func Discard(string, ...interface{}) {}

// Recorder collects formatted diagnostic lines so they can be returned to a
// caller (for example in an HTTP response) instead of only being logged.
type Recorder struct {
	mu    sync.Mutex
	lines []string
	next  func(format string, v ...interface{})
}

// NewRecorder returns a Recorder that also forwards every line to next,
// when next is non-nil.
func NewRecorder(next func(format string, v ...interface{})) *Recorder {
	return &Recorder{next: next}
}

// Logf records one line. Trailing newlines are trimmed.
func (r *Recorder) Logf(format string, v ...interface{}) {
	line := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	if r.next != nil {
		r.next(format, v...)
	}
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
