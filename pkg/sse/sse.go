// Package sse encodes and decodes server-sent events.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
)

// DoneSentinel is the data payload that terminates an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Event is a single server-sent event.
type Event struct {
	ID    string
	Event string
	Data  []byte
}

// IsDone reports whether the event carries the stream terminator.
func (e *Event) IsDone() bool {
	return e != nil && string(e.Data) == DoneSentinel
}

// Serialize converts an event to its wire form, terminated by a blank line.
// Multi-line data is split across several data fields.
func Serialize(event *Event) []byte {
	if event == nil {
		return []byte{}
	}

	var buffer bytes.Buffer

	if event.Event != "" {
		buffer.WriteString("event: ")
		buffer.WriteString(event.Event)
		buffer.WriteString("\n")
	}

	if event.ID != "" {
		buffer.WriteString("id: ")
		buffer.WriteString(event.ID)
		buffer.WriteString("\n")
	}

	// At least one data line keeps the event valid when the payload is empty.
	for _, line := range strings.Split(string(event.Data), "\n") {
		buffer.WriteString("data: ")
		buffer.WriteString(line)
		buffer.WriteString("\n")
	}

	buffer.WriteString("\n")
	return buffer.Bytes()
}

// ParseEvent parses one complete event block.
func ParseEvent(data []byte) (*Event, error) {
	if len(data) == 0 {
		return nil, errors.New("empty SSE event data")
	}

	event := &Event{}
	var dataLines []string

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event.Event = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			event.ID = value
		}
	}

	if len(dataLines) > 0 {
		event.Data = []byte(strings.Join(dataLines, "\n"))
	}

	return event, nil
}

// ParseStream reads events from r until EOF, ctx cancellation or a read error.
// The returned channel is closed when reading stops; the error function
// reports the read error, if any, once the channel is closed.
func ParseStream(ctx context.Context, r io.Reader) (<-chan *Event, func() error) {
	events := make(chan *Event)
	var readErr error

	go func() {
		defer close(events)

		send := func(block []byte) bool {
			event, err := ParseEvent(block)
			if err != nil || (len(event.Data) == 0 && event.Event == "" && event.ID == "") {
				return true
			}
			select {
			case events <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var block bytes.Buffer

		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				if block.Len() > 0 {
					if !send(block.Bytes()) {
						return
					}
					block.Reset()
				}
				continue
			}
			block.WriteString(line)
			block.WriteString("\n")
		}

		if block.Len() > 0 {
			send(block.Bytes())
		}
		readErr = scanner.Err()
	}()

	return events, func() error { return readErr }
}
