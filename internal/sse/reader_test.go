package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) ([]string, error) {
	t.Helper()

	var out []string
	for {
		payload, err := r.Next()
		if err != nil {
			return out, err
		}
		out = append(out, payload)
	}
}

func TestReaderOneByteReads(t *testing.T) {
	src := strings.NewReader(helloFrame + "data: {\"type\":\"done\"}\n\n")
	r := NewReader(iotest.OneByteReader(src))

	got, err := readAll(t, r)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{
		`{"type":"text-delta","content":"hello"}`,
		`{"type":"done"}`,
	}, got)
}

func TestReaderFlushesTailOnClose(t *testing.T) {
	r := NewReader(strings.NewReader(`data: {"type":"done"}`))

	got, err := readAll(t, r)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{`{"type":"done"}`}, got)
}

func TestReaderPropagatesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader(helloFrame+"data: {\"ty"), iotest.ErrReader(boom))
	r := NewReader(src)

	got, err := readAll(t, r)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{`{"type":"text-delta","content":"hello"}`}, got)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}
