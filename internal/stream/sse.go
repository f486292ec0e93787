package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// DoneSentinel is the data payload that ends an OpenAI-style event stream.
const DoneSentinel = "[DONE]"

// UpstreamError is an error payload delivered inside the event stream.
type UpstreamError struct {
	Payload string
}

func (e *UpstreamError) Error() string {
	msg := gjson.Get(e.Payload, "error.message")
	if msg.Exists() {
		return "upstream error: " + msg.String()
	}
	return "upstream error: " + e.Payload
}

// SSESource reads fragments from a text/event-stream body. Each event's
// data lines are joined and decoded as one JSON fragment; "[DONE]" and
// end of body both end the stream.
type SSESource struct {
	body io.Closer
	r    *bufio.Reader
	done bool
}

// NewSSESource wraps an event-stream body. Closing the source closes body.
func NewSSESource(body io.ReadCloser) *SSESource {
	return &SSESource{body: body, r: bufio.NewReader(body)}
}

// Close releases the underlying body.
func (s *SSESource) Close() error {
	s.done = true
	return s.body.Close()
}

// Next implements Source.
func (s *SSESource) Next(ctx context.Context) (tree.Value, error) {
	var (
		event string
		data  []string
	)
	for !s.done {
		if err := ctx.Err(); err != nil {
			return tree.Value{}, err
		}
		line, err := s.r.ReadString('\n')
		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return tree.Value{}, fmt.Errorf("read event stream: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line dispatches the pending event.
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
			case "event":
				event = value
			}
		}

		if atEOF {
			s.done = true
		}
		if (line == "" || atEOF) && len(data) > 0 {
			return s.dispatch(event, strings.Join(data, "\n"))
		}
		if line == "" {
			event = ""
		}
	}
	return tree.Value{}, io.EOF
}

func (s *SSESource) dispatch(event, payload string) (tree.Value, error) {
	if payload == DoneSentinel {
		s.done = true
		return tree.Value{}, io.EOF
	}
	if event == "error" {
		return tree.Value{}, &UpstreamError{Payload: payload}
	}
	if !gjson.Valid(payload) {
		return tree.Value{}, fmt.Errorf("invalid fragment payload %q", truncate(payload, 120))
	}
	if gjson.Get(payload, "error").Exists() {
		return tree.Value{}, &UpstreamError{Payload: payload}
	}
	return tree.FromJSON([]byte(payload))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SliceSource replays fragments that are already in memory.
type SliceSource struct {
	items []tree.Value
	pos   int
}

// FromValues returns a source yielding items in order.
func FromValues(items ...tree.Value) *SliceSource {
	cp := make([]tree.Value, len(items))
	copy(cp, items)
	return &SliceSource{items: cp}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (tree.Value, error) {
	if err := ctx.Err(); err != nil {
		return tree.Value{}, err
	}
	if s.pos >= len(s.items) {
		return tree.Value{}, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}
