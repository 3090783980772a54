package sse

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

func TestWriterFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteData(map[string]string{"type": "done"}))
	require.NoError(t, w.WriteKeepAlive())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, "data: {\"type\":\"done\"}\n\n: keepalive\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	var d Decoder
	assert.Equal(t, []string{`{"type":"done"}`}, d.Feed(rec.Body.Bytes()))
}

type noFlush struct{ http.ResponseWriter }

func TestWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(noFlush{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

type countingWriter struct {
	n    atomic.Int32
	fail int32
}

func (c *countingWriter) WriteKeepAlive() error {
	if c.n.Add(1) >= c.fail {
		return errors.New("closed")
	}
	return nil
}

func TestTickerKeepAliveStopsOnWriteError(t *testing.T) {
	w := &countingWriter{fail: 3}
	k := NewTickerKeepAlive(time.Millisecond)

	stopped := k.Start(w, &logger.Logger{Logger: zap.NewNop()})

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not stop after write failure")
	}
	assert.Equal(t, int32(3), w.n.Load())
	k.Stop()
}

func TestTickerKeepAliveStop(t *testing.T) {
	k := NewTickerKeepAlive(time.Hour)
	stopped := k.Start(&countingWriter{fail: 1}, &logger.Logger{Logger: zap.NewNop()})

	k.Stop()
	k.Stop()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not stop")
	}
}
