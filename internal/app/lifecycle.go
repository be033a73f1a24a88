package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/arkilian/gridbench/internal/logging"
)

// closerStack releases run resources in reverse order of registration.
type closerStack struct {
	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

func (s *closerStack) push(name string, c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, namedCloser{name: name, closer: c})
}

// closeAll closes every registered closer (LIFO) and returns the first error.
// The stack is empty afterwards, so a second call is a no-op.
func (s *closerStack) closeAll() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].closer.Close(); err != nil {
			logging.Warn().Err(err).Str("resource", closers[i].name).Msg("close failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", closers[i].name, err)
			}
		}
	}
	return firstErr
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. A cancelled
// run still aggregates and exports its partial report.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logging.Warn().Str("signal", sig.String()).Msg("interrupt received, stopping run")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
