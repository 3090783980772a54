// Package sse implements the line-oriented event-stream framing used by the
// chat stream endpoint: an incremental decoder for clients and a frame
// writer with keep-alive support for servers.
package sse

import (
	"bytes"
)

const (
	// DataPrefix marks a line carrying an event payload.
	DataPrefix = "data:"

	// DoneSentinel is an end-of-stream marker some providers send as a payload.
	DoneSentinel = "[DONE]"

	// MaxLineSize bounds the carry-over buffer. A longer line is dropped.
	MaxLineSize = 1 << 20
)

// Decoder turns arbitrarily fragmented chunks of an event stream into payload
// strings. The zero value is ready to use. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	buf      []byte
	skipping bool // inside an oversized line, discard until the next newline
}

// Feed appends chunk to the carry-over buffer and returns the payloads of all
// lines completed by it, in order. The trailing incomplete line is held back
// until a later Feed or Flush.
func (d *Decoder) Feed(chunk []byte) []string {
	var out []string

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.hold(chunk)
			break
		}

		line := chunk[:i]
		chunk = chunk[i+1:]

		if d.skipping {
			d.skipping = false
			continue
		}

		if len(d.buf) > 0 {
			d.buf = append(d.buf, line...)
			line = d.buf
		}

		if payload, ok := parseLine(line); ok {
			out = append(out, payload)
		}
		d.buf = d.buf[:0]
	}

	return out
}

// Flush treats the held-back tail as a complete line. Call it once the
// underlying transport has closed.
func (d *Decoder) Flush() []string {
	defer d.Reset()

	if d.skipping || len(d.buf) == 0 {
		return nil
	}
	if payload, ok := parseLine(d.buf); ok {
		return []string{payload}
	}
	return nil
}

// Reset discards any buffered partial line.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.skipping = false
}

// Buffered reports the number of bytes held back.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) hold(part []byte) {
	if d.skipping {
		return
	}
	if len(d.buf)+len(part) > MaxLineSize {
		d.buf = d.buf[:0]
		d.skipping = true
		return
	}
	d.buf = append(d.buf, part...)
}

// parseLine extracts the payload of a data line. Comments, other fields,
// blank lines and the done sentinel yield false.
func parseLine(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return "", false
	}

	data := line[len(DataPrefix):]
	data = bytes.TrimPrefix(data, []byte(" "))

	if len(data) == 0 || string(data) == DoneSentinel {
		return "", false
	}

	return string(data), true
}
