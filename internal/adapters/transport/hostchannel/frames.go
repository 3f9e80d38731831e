package hostchannel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxFrameSize = 16 << 20

const (
	frameTypeRequest  = "request"
	frameTypeResponse = "response"
)

type requestFrame struct {
	Type          string          `json:"type"`
	Command       string          `json:"command"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

type responseFrame struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	OK            bool            `json:"ok"`
	Body          json.RawMessage `json:"body"`
	Error         string          `json:"error,omitempty"`
}

// writeFrame emits "<len>\n<json>\n".
func writeFrame(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	var n int
	if _, err := fmt.Sscanf(line, "%d\n", &n); err != nil {
		return nil, fmt.Errorf("invalid length prefix %q: %w", strings.TrimSpace(line), err)
	}
	if n < 0 || n > maxFrameSize {
		return nil, fmt.Errorf("invalid length prefix %d", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	term, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if term != '\n' {
		return nil, fmt.Errorf("expected newline terminator, got %q", term)
	}
	return payload, nil
}
