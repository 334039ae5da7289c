package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/plan"
	"github.com/quietloop/planrunner/pkg/session"
)

// Executor resolves, dispatches, retries, and normalizes a single step.
type Executor struct {
	Registry    *contracts.Registry
	Router      *session.Router
	Retry       RetryPolicy
	CallTimeout time.Duration
}

// Execute runs one step to completion (including retries) and returns
// its normalized output.
func (e *Executor) Execute(ctx context.Context, step plan.Step, state StateReader) (any, error) {
	var contract *contracts.ToolContract
	if step.Type == plan.StepTool {
		c, ok := e.Registry.Get(step.Tool)
		if !ok {
			return nil, fmt.Errorf("exec: step %q references unregistered tool %q", step.ID, step.Tool)
		}
		contract = c
	}

	args, err := ResolveArguments(step.Args, state)
	if err != nil {
		return nil, err
	}

	if len(step.From) > 0 && contract != nil && contract.HasArg("content") {
		content, err := resolveRefs(step.From, step.FromWasList, state)
		if err != nil {
			return nil, err
		}
		if args == nil {
			args = make(map[string]any)
		}
		args["content"] = content
	}

	idempotent := contract != nil && contract.Idempotent
	isResourceRead := step.Type == plan.StepResource || (contract != nil && contract.IsResourceRead)

	lease, err := e.Router.Acquire(ctx, step.Server)
	if err != nil {
		return nil, fmt.Errorf("exec: step %q: %w", step.ID, err)
	}
	defer lease.Release()

	raw, err := e.Retry.Do(ctx, idempotent, isResourceRead, func(callCtx context.Context) (any, error) {
		if e.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, e.CallTimeout)
			defer cancel()
		}
		if step.Type == plan.StepResource {
			// Step URIs use the file://<path>/ form; the backend wants
			// the bare path.
			uri := strings.TrimSuffix(strings.TrimPrefix(step.URI, "file://"), "/")
			return lease.Session.ReadResource(callCtx, uri)
		}
		return lease.Session.CallTool(callCtx, step.Tool, args)
	})
	if err != nil {
		return nil, fmt.Errorf("exec: step %q failed: %w", step.ID, err)
	}

	return NormalizeOutput(raw), nil
}
