package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/exec"
	"github.com/quietloop/planrunner/pkg/plan"
	"github.com/quietloop/planrunner/pkg/session"
	"github.com/quietloop/planrunner/pkg/transport"
)

func newTestRunner(t *testing.T, dbPoolSize int, dbTools map[string]transport.ToolFunc, fileTools map[string]transport.ToolFunc, resources transport.ResourceFunc) *Runner {
	t.Helper()
	dbSessions := make([]session.Session, dbPoolSize)
	for i := range dbSessions {
		dbSessions[i] = transport.NewInMemorySession(dbTools, nil)
	}
	fileSession := transport.NewInMemorySession(fileTools, resources)

	dbPool, err := session.NewPool("db", dbSessions)
	require.NoError(t, err)
	filePool, err := session.NewPool("file", []session.Session{fileSession})
	require.NoError(t, err)
	router := session.NewRouter(map[string]*session.Pool{"db": dbPool, "file": filePool})

	return &Runner{
		Registry: contracts.NewDefaultRegistry(),
		Executor: &exec.Executor{
			Registry:    contracts.NewDefaultRegistry(),
			Router:      router,
			Retry:       exec.RetryPolicy{MaxRetries: 3, BackoffMS: 1},
			CallTimeout: 2 * time.Second,
		},
	}
}

func TestRun_CommutativeCreatesThenList(t *testing.T) {
	var mu sync.Mutex
	users := []map[string]any{}

	r := newTestRunner(t, 3, map[string]transport.ToolFunc{
		"create_user": func(args map[string]any) (any, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			u := map[string]any{"id": len(users) + 1, "name": args["name"]}
			users = append(users, u)
			mu.Unlock()
			return u, nil
		},
		"list_users": func(args map[string]any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make([]any, len(users))
			for i, u := range users {
				out[i] = u
			}
			return out, nil
		},
	}, nil, nil)

	p := plan.Plan{
		{ID: "create_alice", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Alice", "email": "alice@x.com"}},
		{ID: "create_bob", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Bob", "email": "bob@x.com"}},
		{ID: "create_charlie", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Charlie", "email": "charlie@x.com"}},
		{ID: "list_all", Type: plan.StepTool, Server: "db", Tool: "list_users"},
	}

	state, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	list, ok := state.Get("list_all")
	require.True(t, ok)
	names := make([]string, 0, 3)
	for _, u := range list.([]any) {
		names = append(names, u.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob", "Charlie"}, names)
}

func TestRun_ReadAfterWrite(t *testing.T) {
	r := newTestRunner(t, 1, map[string]transport.ToolFunc{
		"create_user": func(args map[string]any) (any, error) {
			return map[string]any{"id": 1, "name": args["name"]}, nil
		},
		"get_user_by_id": func(args map[string]any) (any, error) {
			return map[string]any{"id": 1, "name": "Alice"}, nil
		},
	}, nil, nil)

	p := plan.Plan{
		{ID: "create_alice", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Alice", "email": "alice@x.com"}},
		{ID: "get_alice", Type: plan.StepTool, Server: "db", Tool: "get_user_by_id",
			Args: map[string]any{"user_id": float64(1)}},
	}

	state, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	got, ok := state.Get("get_alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", got.(map[string]any)["name"])
}

func TestRun_ExplicitFanInWritesContentThroughToFile(t *testing.T) {
	var written any
	r := newTestRunner(t, 1,
		map[string]transport.ToolFunc{
			"create_user": func(args map[string]any) (any, error) {
				return map[string]any{"name": args["name"]}, nil
			},
			"list_users": func(args map[string]any) (any, error) {
				return []any{map[string]any{"name": "Alice"}, map[string]any{"name": "Bob"}}, nil
			},
		},
		map[string]transport.ToolFunc{
			"write_file": func(args map[string]any) (any, error) {
				written = args["content"]
				return map[string]any{"status": "ok"}, nil
			},
		},
		func(uri string) (any, error) { return written, nil },
	)

	p := plan.Plan{
		{ID: "create_alice", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Alice", "email": "a@x.com"}, From: []string{}, FromWasList: true},
		{ID: "create_bob", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "Bob", "email": "b@x.com"}, From: []string{}, FromWasList: true},
		{ID: "list_all_users", Type: plan.StepTool, Server: "db", Tool: "list_users",
			From: []string{"create_alice", "create_bob"}, FromWasList: true},
		{ID: "write_user_list_file", Type: plan.StepTool, Server: "file", Tool: "write_file",
			Args: map[string]any{"path": "user_list.json"}, From: []string{"list_all_users"}},
		{ID: "read_user_list_file", Type: plan.StepResource, Server: "file",
			URI: "file://user_list.json/", From: []string{"write_user_list_file"}},
	}

	state, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	content, ok := state.Get("write_user_list_file")
	require.True(t, ok)
	_ = content

	read, ok := state.Get("read_user_list_file")
	require.True(t, ok)
	assert.Equal(t, written, read)
	assert.Equal(t,
		[]any{map[string]any{"name": "Alice"}, map[string]any{"name": "Bob"}},
		written,
	)
}

func TestRun_FailFastStopsNewLaunchesButAwaitsInFlight(t *testing.T) {
	var xStarted, yLaunched int32

	r := newTestRunner(t, 2, map[string]transport.ToolFunc{
		"create_user": func(args map[string]any) (any, error) {
			switch args["name"] {
			case "bad":
				return nil, errors.New("boom")
			case "x":
				atomic.AddInt32(&xStarted, 1)
				time.Sleep(20 * time.Millisecond)
				return map[string]any{"name": "x"}, nil
			default:
				return map[string]any{"name": args["name"]}, nil
			}
		},
		"list_users": func(args map[string]any) (any, error) {
			atomic.AddInt32(&yLaunched, 1)
			return []any{}, nil
		},
	}, nil, nil)

	// "create_bad" fails almost immediately; "create_x" is independent
	// and still in flight when that happens, finishing afterward. Its
	// successor "y" is ready the instant create_x completes, but the
	// runner must not launch it once fail-fast has tripped.
	p := plan.Plan{
		{ID: "create_bad", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "bad", "email": "b@x.com"}},
		{ID: "create_x", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "x", "email": "x@x.com"}},
		{ID: "y", Type: plan.StepTool, Server: "db", Tool: "list_users",
			From: []string{"create_x"}},
	}

	_, err := r.Run(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&xStarted), "create_x must still run to completion, never canceled")
	assert.Equal(t, int32(0), atomic.LoadInt32(&yLaunched), "y must not launch once fail-fast has tripped")
}

func TestRun_ContinueOnErrorStillRunsIndependentBranches(t *testing.T) {
	var yLaunched int32

	r := newTestRunner(t, 2, map[string]transport.ToolFunc{
		"create_user": func(args map[string]any) (any, error) {
			if args["name"] == "bad" {
				return nil, errors.New("boom")
			}
			time.Sleep(10 * time.Millisecond)
			return map[string]any{"name": args["name"]}, nil
		},
		"list_users": func(args map[string]any) (any, error) {
			atomic.AddInt32(&yLaunched, 1)
			return []any{}, nil
		},
	}, nil, nil)
	r.ContinueOnError = true

	p := plan.Plan{
		{ID: "create_bad", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "bad", "email": "b@x.com"}},
		{ID: "create_x", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "x", "email": "x@x.com"}},
		{ID: "y", Type: plan.StepTool, Server: "db", Tool: "list_users",
			From: []string{"create_x"}},
	}

	_, err := r.Run(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&yLaunched), "y's branch is independent of the failure and must still run")
}

func TestRun_StateKeysCoverEveryStepID(t *testing.T) {
	r := newTestRunner(t, 1, map[string]transport.ToolFunc{
		"create_user": func(args map[string]any) (any, error) { return map[string]any{"ok": true}, nil },
	}, nil, nil)

	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "x", "email": "x@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "y", "email": "y@x.com"}},
	}
	state, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	snap := state.Snapshot()
	_, aOK := snap["a"]
	_, bOK := snap["b"]
	assert.True(t, aOK)
	assert.True(t, bOK)
}
