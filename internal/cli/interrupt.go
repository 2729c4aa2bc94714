package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// InterruptExitCode is the conventional status for a command stopped by SIGINT.
const InterruptExitCode = 130

// InterruptHandler turns the first SIGINT or SIGTERM into a context
// cancellation. In-flight backend calls are abandoned, but the deferred save of
// cache and session still runs because it uses an uncancelled context.
type InterruptHandler struct {
	writer      io.Writer
	signals     chan os.Signal
	interrupted atomic.Bool
}

func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{writer: writer, signals: make(chan os.Signal, 1)}
}

// HandleInterrupts derives a context that ends on the first signal. stop is
// idempotent and must be called once the command returns.
func (h *InterruptHandler) HandleInterrupts(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go h.wait(done, cancel)

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(h.signals)
			close(done)
			cancel()
		})
	}
}

func (h *InterruptHandler) wait(done <-chan struct{}, cancel context.CancelFunc) {
	select {
	case <-done:
	case <-h.signals:
		if h.interrupted.CompareAndSwap(false, true) {
			fmt.Fprintf(h.writer, "\n%s\n%s\n",
				FormatWarning("Interrupted."),
				FormatInfo("Pending requests were abandoned; the cache and selection are saved as they were."))
		}
		cancel()
	}
}

// WasInterrupted reports whether a signal arrived.
func (h *InterruptHandler) WasInterrupted() bool { return h.interrupted.Load() }
