package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietloop/planrunner/pkg/config"
	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/exec"
	"github.com/quietloop/planrunner/pkg/runner"
	"github.com/quietloop/planrunner/pkg/session"
	"github.com/quietloop/planrunner/pkg/telemetry"
	"github.com/quietloop/planrunner/pkg/transport"
	"github.com/quietloop/planrunner/pkg/validate"
)

// executePlanFile loads, validates, and runs the plan at planPath
// against freshly spawned db/file tool-server subprocesses, honoring
// cfg's pool sizing, retry policy, and per-call timeout. The pools and
// their subprocesses are torn down before returning.
func executePlanFile(planPath, dbServerCmd, fileServerCmd string, cfg *config.Config) (map[string]any, error) {
	ctx := context.Background()
	logger := slog.Default()

	p, err := loadPlan(planPath)
	if err != nil {
		return nil, err
	}

	registry := contracts.NewDefaultRegistry()
	if err := validate.Validate(p, registry); err != nil {
		return nil, err
	}

	telemetryProvider, err := telemetry.New(ctx, telemetry.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("planrun: starting telemetry: %w", err)
	}
	defer telemetryProvider.Shutdown(ctx)

	dbPool, dbSessions, err := spawnPool(ctx, logger, "db", dbServerCmd, cfg.PoolSizePerBackend)
	if err != nil {
		return nil, err
	}
	defer closeAll(dbSessions)
	defer dbPool.Close()

	filePool, fileSessions, err := spawnPool(ctx, logger, "file", fileServerCmd, cfg.PoolSizePerBackend)
	if err != nil {
		return nil, err
	}
	defer closeAll(fileSessions)
	defer filePool.Close()

	dbPool.Telemetry = telemetryProvider
	filePool.Telemetry = telemetryProvider

	router := session.NewRouter(map[string]*session.Pool{
		"db":   dbPool,
		"file": filePool,
	})

	r := &runner.Runner{
		Registry:        registry,
		ContinueOnError: !cfg.FailFast,
		Executor: &exec.Executor{
			Registry:    registry,
			Router:      router,
			Retry:       exec.RetryPolicy{MaxRetries: cfg.MaxRetries, BackoffMS: cfg.RetryBackoffMS},
			CallTimeout: time.Duration(cfg.CallTimeoutS) * time.Second,
		},
		Telemetry: telemetryProvider,
	}

	state, err := r.Run(ctx, p)
	if err != nil {
		return nil, err
	}
	return state.Snapshot(), nil
}

// spawnPool starts poolSize copies of command as subprocesses, each
// initialized and wrapped as a session.Session, and returns them as a
// ready session.Pool alongside the raw session slice (so callers can
// Close each StdioSession's subprocess directly; Pool.Close only closes
// sessions still parked in its free list, which is every session here
// since nothing has been leased yet).
func spawnPool(ctx context.Context, logger *slog.Logger, backend, command string, poolSize int) (*session.Pool, []session.Session, error) {
	if poolSize < 1 {
		poolSize = 1
	}

	sessions := make([]session.Session, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		s, err := transport.NewStdioSession(ctx, logger, command)
		if err != nil {
			closeAll(sessions)
			return nil, nil, fmt.Errorf("planrun: starting %s server %q: %w", backend, command, err)
		}
		if _, err := s.Initialize(ctx); err != nil {
			closeAll(sessions)
			return nil, nil, fmt.Errorf("planrun: initializing %s server %q: %w", backend, command, err)
		}
		sessions = append(sessions, s)
	}

	pool, err := session.NewPool(backend, sessions)
	if err != nil {
		closeAll(sessions)
		return nil, nil, err
	}
	return pool, sessions, nil
}

func closeAll(sessions []session.Session) {
	for _, s := range sessions {
		_ = s.Close()
	}
}
