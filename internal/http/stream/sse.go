// Package stream writes Server-Sent Events and interleaves keep-alive frames
// with the events of a long-running producer.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event names used on the wire.
const (
	EventProgress  = "progress"
	EventKeepAlive = "keepalive"
	EventComplete  = "complete"
	EventError     = "error"
)

// Frame is one SSE event. Data is encoded as JSON.
type Frame struct {
	Event string
	Data  any
}

// Writer emits SSE frames on one response.
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// ExtendDeadline moves the connection write deadline d past now, replacing
// the server WriteTimeout for this response. d <= 0 clears the deadline.
// Writers that cannot set deadlines are left alone.
func ExtendDeadline(w http.ResponseWriter, d time.Duration) error {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	err := http.NewResponseController(w).SetWriteDeadline(deadline)
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}

// Open sends the SSE headers and lifts the connection write deadline so the
// server WriteTimeout does not cut a long stream.
func Open(w http.ResponseWriter) (*Writer, error) {
	if err := ExtendDeadline(w, 0); err != nil {
		return nil, err
	}
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("flush stream headers: %w", err)
	}
	return &Writer{w: w, rc: rc}, nil
}

// Send writes f and flushes it to the client.
func (s *Writer) Send(f Frame) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Event, err)
	}
	var buf bytes.Buffer
	if f.Event != "" {
		buf.WriteString("event: ")
		buf.WriteString(sanitize(f.Event))
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.rc.Flush()
}

// KeepAlive writes an empty keepalive frame.
func (s *Writer) KeepAlive() error {
	return s.Send(Frame{Event: EventKeepAlive, Data: struct{}{}})
}

// Relay forwards events as frames until the channel closes, writing a
// keepalive every interval while it waits. It returns early when ctx ends
// or a write fails.
func Relay[T any](ctx context.Context, s *Writer, interval time.Duration, events <-chan T, frame func(T) Frame) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.KeepAlive(); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Send(frame(ev)); err != nil {
				return err
			}
		}
	}
}

func sanitize(name string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(name)
}
