// Package transcription delivers speech transcription fragments to an
// external consumer, such as a caption log.
package transcription

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Forwarder receives transcription fragments as they arrive. Model carries
// transcribed model speech, User transcribed microphone audio.
type Forwarder interface {
	Model(text string)
	User(text string)
}

// Discard is a Forwarder that drops everything.
var Discard Forwarder = discard{}

type discard struct{}

func (discard) Model(string) {}
func (discard) User(string)  {}

// Writer is a Forwarder that appends timestamped caption lines to an
// io.Writer. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriter creates a Writer forwarder.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

func (f *Writer) Model(text string) { f.write("model", text) }
func (f *Writer) User(text string)  { f.write("user", text) }

func (f *Writer) write(speaker, text string) {
	if text == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = fmt.Fprintf(f.w, "[%s] %s: %s\n", f.now().Format("15:04:05.000"), speaker, text)
}
