// Package sse decodes text/event-stream bodies into discrete events.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxLineBytes bounds a single line of the stream.
const DefaultMaxLineBytes = 1 << 20

// ErrStop may be returned from a handler to end reading without an error.
var ErrStop = errors.New("sse: stop")

// Event is one dispatched server-sent event.
type Event struct {
	Type string
	Data []byte
	ID   string
}

// Handler receives events in stream order.
type Handler func(Event) error

// Reader parses server-sent events from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	scanner := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > maxLineBytes {
		initial = maxLineBytes
	}
	scanner.Buffer(make([]byte, 0, initial), maxLineBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next event. io.EOF is returned once the stream is drained;
// an event still pending at EOF is flushed first.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    [][]byte
		pending bool
	)

	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")

		if len(line) == 0 {
			if pending {
				ev.Data = bytes.Join(data, []byte("\n"))
				return ev, nil
			}
			continue
		}

		// Comment lines carry keep-alive pings.
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			ev.Type = string(value)
			pending = true
		case "data":
			data = append(data, append([]byte(nil), value...))
			pending = true
		case "id":
			ev.ID = string(value)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("read event stream: %w", err)
	}
	if pending {
		ev.Data = bytes.Join(data, []byte("\n"))
		return ev, nil
	}
	return Event{}, io.EOF
}

// Read feeds every event of r to fn until the stream ends, fn returns ErrStop,
// or ctx is cancelled.
func Read(ctx context.Context, r io.Reader, fn Handler) error {
	if fn == nil {
		return fmt.Errorf("sse handler is nil")
	}

	reader := NewReader(r, 0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

func splitField(line []byte) (string, []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), nil
	}
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:idx]), value
}
