// Command demo-file-server is a reference file tool server: a
// write_file tool plus a file://<path>/ resource read, both scoped
// under a base directory with path-containment checks.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type request struct {
	ID   string         `json:"id"`
	Op   string         `json:"op"`
	Tool string         `json:"tool,omitempty"`
	URI  string         `json:"uri,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	baseDir := flag.String("base-dir", ".", "directory files are scoped under")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "demo-file-server")

	abs, err := filepath.Abs(*baseDir)
	if err != nil {
		logger.Error("resolving base dir", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		logger.Error("creating base dir", "error", err)
		os.Exit(1)
	}

	srv := &fileServer{baseDir: abs, logger: logger}
	if err := serve(os.Stdin, os.Stdout, logger, srv.handle); err != nil {
		logger.Error("serving", "error", err)
		os.Exit(1)
	}
}

type fileServer struct {
	baseDir string
	logger  *slog.Logger
}

func (s *fileServer) handle(ctx context.Context, req request) (any, error) {
	switch req.Op {
	case "initialize":
		return map[string]any{"name": "demo-file-server", "version": "0.1.0"}, nil
	case "call_tool":
		return s.callTool(req.Tool, req.Args)
	case "read_resource":
		return s.readResource(req.URI)
	default:
		return nil, fmt.Errorf("demo-file-server: unknown op %q", req.Op)
	}
}

func (s *fileServer) callTool(tool string, args map[string]any) (any, error) {
	if tool != "write_file" {
		return nil, fmt.Errorf("demo-file-server: unknown tool %q", tool)
	}

	path, _ := args["path"].(string)
	path = normalizeWritePath(path)
	content, ok := args["content"]
	if !ok {
		return nil, fmt.Errorf("demo-file-server: write_file requires content")
	}

	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	text, err := contentToText(content)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("demo-file-server: creating parent directories: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("demo-file-server: writing file: %w", err)
	}
	return map[string]any{"path": path, "status": "ok"}, nil
}

// readResource normally receives a bare path: the runner strips the
// "file://<path>/" wrapping before the call crosses the transport. An
// unstripped file:// prefix is tolerated for clients driving the server
// by hand; any other scheme is rejected.
func (s *fileServer) readResource(uri string) (any, error) {
	path := strings.TrimPrefix(uri, "file://")
	if strings.Contains(path, "://") {
		return nil, fmt.Errorf("demo-file-server: unsupported resource uri %q", uri)
	}

	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("demo-file-server: file not allowed: %s", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("demo-file-server: reading file: %w", err)
	}
	return string(data), nil
}

// normalizeWritePath keeps a usable requested path as-is but replaces
// a missing filename, a blank one, or a forbidden .exe with a generated
// name, so a sloppy planner output still lands somewhere writable.
func normalizeWritePath(requested string) string {
	name := filepath.Base(requested)
	switch {
	case requested == "", strings.TrimSpace(name) == "", name == ".", name == string(filepath.Separator):
		return "generated_" + uuid.NewString() + ".json"
	case strings.HasSuffix(strings.ToLower(name), ".exe"):
		return "generated_" + uuid.NewString() + ".json"
	default:
		return requested
	}
}

// resolve joins path onto baseDir and rejects anything that would
// escape it.
func (s *fileServer) resolve(path string) (string, error) {
	joined := filepath.Join(s.baseDir, path)
	rel, err := filepath.Rel(s.baseDir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("demo-file-server: file not allowed: %s", path)
	}
	return joined, nil
}

func contentToText(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("demo-file-server: encoding content: %w", err)
		}
		return string(data), nil
	}
}

func serve(r io.Reader, w io.Writer, logger *slog.Logger, handle func(context.Context, request) (any, error)) error {
	var writeMu sync.Mutex
	ctx := context.Background()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn("malformed request frame", "error", err)
			continue
		}

		result, err := handle(ctx, req)
		resp := response{ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		body, err := json.Marshal(resp)
		if err != nil {
			logger.Warn("encoding response frame", "error", err)
			continue
		}
		body = append(body, '\n')

		writeMu.Lock()
		_, writeErr := w.Write(body)
		writeMu.Unlock()
		if writeErr != nil {
			return writeErr
		}
	}
	return scanner.Err()
}
