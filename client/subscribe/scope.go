package subscribe

import (
	"context"
	"errors"
	"sync"
)

// Scope owns the handles of one view. Closing it releases all of them,
// newest first. Use it with defer so teardown runs on every exit path.
type Scope struct {
	m *Manager

	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

// NewScope creates an empty scope.
func (m *Manager) NewScope() *Scope {
	return &Scope{m: m}
}

// Subscribe opens a handle owned by the scope.
func (s *Scope) Subscribe(ctx context.Context, topic string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	h, err := s.m.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// Close releases every handle. Later calls return nil.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		errs = append(errs, handles[i].Unsubscribe())
	}
	return errors.Join(errs...)
}
