package stream

import (
	"bytes"
	"strings"
)

// LineDecoder splits a byte stream into lines. It is not safe for
// concurrent use.
type LineDecoder struct {
	buf []byte
}

// Write buffers p and returns every line completed by it, without the
// terminating newline or a trailing carriage return. An unterminated tail
// stays buffered until a later Write or Flush.
func (d *LineDecoder) Write(p []byte) []string {
	d.buf = append(d.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(d.buf[:i]), "\r"))
		d.buf = d.buf[i+1:]
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Flush returns the buffered tail, if any, and resets the decoder.
func (d *LineDecoder) Flush() (string, bool) {
	if len(d.buf) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = nil
	return line, true
}

// Pending reports how many bytes are buffered without a line terminator.
func (d *LineDecoder) Pending() int {
	return len(d.buf)
}

// LineKind classifies an SSE line.
type LineKind int

const (
	// LineIgnored is a comment, event name, blank line, or anything else
	// that carries no data.
	LineIgnored LineKind = iota

	// LineData carries a JSON payload.
	LineData

	// LineDone is the end-of-stream sentinel.
	LineDone
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// ParseLine classifies one SSE line and returns the data payload for
// LineData. A single space after the "data:" marker is optional.
func ParseLine(line string) (string, LineKind) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", LineIgnored
	}
	payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
	if strings.TrimSpace(payload) == doneSentinel {
		return "", LineDone
	}
	if strings.TrimSpace(payload) == "" {
		return "", LineIgnored
	}
	return payload, LineData
}
