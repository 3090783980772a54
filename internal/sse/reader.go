package sse

import (
	"errors"
	"io"
)

const readChunkSize = 4 * 1024

// Reader is a pull iterator over the payloads of an event stream.
type Reader struct {
	r       io.Reader
	dec     Decoder
	pending []string
	buf     []byte
	err     error
}

// NewReader creates a Reader that decodes r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		buf: make([]byte, readChunkSize),
	}
}

// Next returns the next payload. It returns io.EOF after the transport has
// closed and every payload has been delivered. Any other transport error is
// returned as-is, after the payloads decoded before it.
func (r *Reader) Next() (string, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return "", r.err
		}
		r.fill()
	}

	payload := r.pending[0]
	r.pending = r.pending[1:]
	return payload, nil
}

func (r *Reader) fill() {
	n, err := r.r.Read(r.buf)
	if n > 0 {
		r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
	}
	if err == nil {
		return
	}

	if errors.Is(err, io.EOF) {
		r.pending = append(r.pending, r.dec.Flush()...)
		r.err = io.EOF
		return
	}
	r.dec.Reset()
	r.err = err
}
