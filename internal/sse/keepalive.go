package sse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

// KeepAliveWriter abstracts writing a keep-alive so strategies can be tested
// without an HTTP connection.
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alives at a fixed interval until stopped or a
// write fails.
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewTickerKeepAlive creates a ticker-based keep-alive.
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sending keep-alives. The returned channel closes when the
// keep-alive goroutine exits.
func (k *TickerKeepAlive) Start(w KeepAliveWriter, log *logger.Logger) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := w.WriteKeepAlive(); err != nil {
					log.Warn("keep-alive write failed, stopping", zap.Error(err))
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopped
}

// Stop terminates the keep-alive. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	k.once.Do(func() { close(k.done) })
}
