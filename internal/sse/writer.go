package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Writer encodes events onto a response stream, flushing after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. When w implements http.Flusher every event is flushed.
func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Write sends one event. Multi-line data is split across data fields.
func (w *Writer) Write(ev Event) error {
	var buf bytes.Buffer
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Comment sends a comment line, which readers ignore.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
