// Package transport implements the client side of the framed stdio
// protocol a tool server speaks: one JSON object per line on stdout/
// stdin, correlated by request id.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/quietloop/planrunner/pkg/session"
)

type request struct {
	ID   string         `json:"id"`
	Op   string         `json:"op"`
	Tool string         `json:"tool,omitempty"`
	URI  string         `json:"uri,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StdioSession is a session.Session backed by a subprocess speaking the
// framed stdio protocol on its stdin/stdout.
type StdioSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan response

	closeOnce sync.Once
	closeErr  error
}

var _ session.Session = (*StdioSession)(nil)

// NewStdioSession starts command as a subprocess and wires up its
// stdin/stdout as the transport's frame channel. stderr is drained to
// the logger so a misbehaving server can't deadlock on a full pipe.
func NewStdioSession(ctx context.Context, logger *slog.Logger, name string, args ...string) (*StdioSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: starting %s: %w", name, err)
	}

	s := &StdioSession{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger.With("component", "transport", "server", name),
		pending: make(map[string]chan response),
	}

	go s.readStdout(stdout)
	go s.readStderr(stderr)

	return s, nil
}

func (s *StdioSession) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Warn("transport: malformed frame", "error", err)
			continue
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (s *StdioSession) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Warn("tool server stderr", "line", scanner.Text())
	}
}

func (s *StdioSession) call(ctx context.Context, req request) (json.RawMessage, error) {
	req.ID = uuid.NewString()

	ch := make(chan response, 1)
	s.pendingMu.Lock()
	s.pending[req.ID] = ch
	s.pendingMu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding request: %w", err)
	}
	body = append(body, '\n')

	s.writeMu.Lock()
	_, writeErr := s.stdin.Write(body)
	s.writeMu.Unlock()
	if writeErr != nil {
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("transport: writing request: %w", writeErr)
	}

	select {
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("transport: remote error: %s", resp.Error)
		}
		return resp.Result, nil
	}
}

// Initialize performs the handshake and returns the server's
// capability payload.
func (s *StdioSession) Initialize(ctx context.Context) (map[string]any, error) {
	raw, err := s.call(ctx, request{Op: "initialize"})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("transport: decoding initialize result: %w", err)
		}
	}
	return out, nil
}

// CallTool invokes a named tool with args.
func (s *StdioSession) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	raw, err := s.call(ctx, request{Op: "call_tool", Tool: tool, Args: args})
	if err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

// ReadResource fetches uri.
func (s *StdioSession) ReadResource(ctx context.Context, uri string) (any, error) {
	raw, err := s.call(ctx, request{Op: "read_resource", URI: uri})
	if err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("transport: decoding result: %w", err)
	}
	return v, nil
}

// Close closes the subprocess's stdin and waits for it to exit.
func (s *StdioSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		s.closeErr = s.cmd.Wait()
	})
	return s.closeErr
}
