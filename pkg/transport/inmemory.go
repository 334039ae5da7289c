package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/quietloop/planrunner/pkg/session"
)

// ToolFunc implements one tool's behavior for an InMemorySession.
type ToolFunc func(args map[string]any) (any, error)

// ResourceFunc implements one resource's behavior for an InMemorySession.
type ResourceFunc func(uri string) (any, error)

// InMemorySession is a session.Session fake backed by plain Go
// functions, so the runner/executor tests never have to shell out to a
// real tool-server subprocess.
type InMemorySession struct {
	mu        sync.Mutex
	tools     map[string]ToolFunc
	resources ResourceFunc
	closed    bool

	calls []string // recorded tool names, in call order, for assertions
}

var _ session.Session = (*InMemorySession)(nil)

// NewInMemorySession builds a fake session dispatching to the given
// tool implementations and a single resource handler.
func NewInMemorySession(tools map[string]ToolFunc, resources ResourceFunc) *InMemorySession {
	return &InMemorySession{tools: tools, resources: resources}
}

func (s *InMemorySession) Initialize(ctx context.Context) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func (s *InMemorySession) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("transport: session closed")
	}
	fn, ok := s.tools[tool]
	s.calls = append(s.calls, tool)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no fake implementation for tool %q", tool)
	}
	return fn(args)
}

func (s *InMemorySession) ReadResource(ctx context.Context, uri string) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("transport: session closed")
	}
	s.mu.Unlock()
	if s.resources == nil {
		return nil, fmt.Errorf("transport: no fake resource handler configured")
	}
	return s.resources(uri)
}

func (s *InMemorySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns the tool names invoked so far, in order.
func (s *InMemorySession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
