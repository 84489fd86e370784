// Package shutdown coordinates graceful teardown of the server's components.
package shutdown

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Manager struct {
	mu       sync.Mutex
	handlers []func(context.Context) error
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a named teardown step.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", name, err)
		}
		return nil
	})
}

// Shutdown runs all registered steps concurrently and waits for them or the
// context deadline, whichever comes first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	handlers := m.handlers
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h func(context.Context) error) {
			defer wg.Done()
			if err := h(ctx); err != nil {
				m.logger.Error("shutdown step failed", zap.Error(err))
			}
		}(handler)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
