package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/dag"
	"github.com/quietloop/planrunner/pkg/exec"
	"github.com/quietloop/planrunner/pkg/plan"
	"github.com/quietloop/planrunner/pkg/telemetry"
)

// Runner executes a validated plan's dependency graph with streaming
// topological concurrency: a step launches the instant its last
// predecessor completes, without waiting for the rest of that
// predecessor's layer.
type Runner struct {
	Registry *contracts.Registry
	Executor *exec.Executor

	// ContinueOnError disables fail-fast: steps not downstream of a
	// failure keep running, though the first error is still what Run
	// returns. The zero value is the default fail-fast behavior.
	ContinueOnError bool

	// Telemetry, when set, gets a span and RED-metric recording per
	// step. Left nil, the runner emits nothing.
	Telemetry *telemetry.Provider
}

// Run builds the plan's dependency graph and executes it to
// completion or first failure. On failure, no new steps are launched
// but steps already in flight are awaited (never canceled); the first
// error encountered is returned. The context passed to Execute is the
// caller's ctx (carrying a telemetry span when Telemetry is set) and is
// never canceled by the runner, so an error in one step never aborts a
// sibling step's in-flight call.
func (r *Runner) Run(ctx context.Context, p plan.Plan) (*ExecutionState, error) {
	g, err := dag.Build(p, r.Registry)
	if err != nil {
		return nil, err
	}

	state := NewExecutionState()
	inDegree := make([]int, g.N)
	for _, tos := range g.Forward {
		for _, to := range tos {
			inDegree[to]++
		}
	}

	var (
		mu       sync.Mutex
		eg       errgroup.Group
		firstErr error
		stopped  bool
	)

	var launch func(i int)
	launch = func(i int) {
		step := p[i]
		eg.Go(func() error {
			stepCtx := ctx
			var stepDone func(error)
			if r.Telemetry != nil {
				stepCtx, stepDone = r.Telemetry.StartStep(ctx, step.ID, step.Tool)
			}
			out, stepErr := r.Executor.Execute(stepCtx, step, state)
			if stepDone != nil {
				stepDone(stepErr)
			}

			mu.Lock()
			defer mu.Unlock()

			if stepErr != nil {
				if firstErr == nil {
					firstErr = stepErr
				}
				if !r.ContinueOnError {
					stopped = true
				}
				return stepErr
			}

			state.set(step.ID, out, step.Produces)
			for _, next := range g.Forward[i] {
				inDegree[next]--
				if inDegree[next] == 0 && !stopped {
					launch(next)
				}
			}
			return nil
		})
	}

	mu.Lock()
	for i := 0; i < g.N; i++ {
		if inDegree[i] == 0 {
			launch(i)
		}
	}
	mu.Unlock()

	_ = eg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return state, nil
}
