package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer sends events over an HTTP response, flushing after every event so
// the client sees each one as soon as it is produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for streaming: it sets the event-stream headers,
// disables caching, allows cross-origin reads and commits the status line.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent writes a serialized event and flushes it.
func (sw *Writer) WriteEvent(event *Event) error {
	if _, err := sw.w.Write(Serialize(event)); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	sw.flusher.Flush()
	return nil
}

// WriteJSON writes v as the data payload of an unnamed event.
func (sw *Writer) WriteJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	return sw.WriteEvent(&Event{Data: bytes.TrimRight(buf.Bytes(), "\n")})
}

// WriteDone writes the [DONE] terminator.
func (sw *Writer) WriteDone() error {
	return sw.WriteEvent(&Event{Data: []byte(DoneSentinel)})
}
