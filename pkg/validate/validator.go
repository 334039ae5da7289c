// Package validate checks an LM-generated plan against a tool registry
// before it is ever turned into a dependency graph: unknown tools,
// malformed ids, dangling $from references, and bad argument shapes
// are all rejected here, never discovered mid-execution.
package validate

import (
	"fmt"
	"regexp"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/plan"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var knownServers = map[string]bool{"db": true, "file": true}

// Validate runs the full ordered rule set against p. It returns the
// first failure it finds wrapped as *Error (itself wrapping
// ErrValidation), or nil if the plan is well formed.
func Validate(p plan.Plan, registry *contracts.Registry) error {
	seen := make(map[string]bool, len(p))

	// Rule 1+2: id format and uniqueness, checked up front since every
	// later rule (including $from resolution) depends on ids being sane.
	for _, step := range p {
		if !idPattern.MatchString(step.ID) {
			return newErr(KindValidationError, step.ID, "id",
				"step id must match %s", idPattern.String())
		}
		if seen[step.ID] {
			return newErr(KindValidationError, step.ID, "id", "duplicate step id")
		}
		seen[step.ID] = true
	}

	for i, step := range p {
		if err := validateStep(p, i, step, registry); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(p plan.Plan, index int, step plan.Step, registry *contracts.Registry) error {
	switch step.Type {
	case plan.StepTool, plan.StepResource:
	default:
		return newErr(KindValidationError, step.ID, "type", "unknown step type %q", step.Type)
	}

	if !knownServers[step.Server] {
		return newErr(KindUnknownServer, step.ID, "server", "unknown server %q", step.Server)
	}

	var contract *contracts.ToolContract
	if step.Type == plan.StepTool {
		if step.Tool == "" {
			return newErr(KindValidationError, step.ID, "tool", "tool step missing tool name")
		}
		c, ok := registry.Get(step.Tool)
		if !ok {
			return newErr(KindUnknownTool, step.ID, "tool", "unknown tool %q", step.Tool)
		}
		if c.Server != "" && c.Server != step.Server {
			return newErr(KindUnknownServer, step.ID, "server",
				"tool %q is served by %q, not %q", step.Tool, c.Server, step.Server)
		}
		contract = c
	} else if step.URI == "" {
		return newErr(KindValidationError, step.ID, "uri", "resource step missing uri")
	}

	if contract != nil {
		if err := validateArgs(step, contract); err != nil {
			return err
		}
	}

	// Format rule: a single dependency must be written as a bare string,
	// not a one-element list; multiple dependencies must use list form.
	if len(step.From) == 1 && step.FromWasList {
		return newErr(KindValidationError, step.ID, "$from", "single $from reference must be a string, not a list")
	}

	for _, ref := range step.From {
		refIdx := p.ByID(ref)
		if refIdx == -1 {
			return newErr(KindUnknownStepReference, step.ID, "$from", "reference to unknown step %q", ref)
		}
		if refIdx >= index {
			return newErr(KindUnknownStepReference, step.ID, "$from", "$from reference %q does not precede step in plan order", ref)
		}
	}

	return nil
}

func validateArgs(step plan.Step, c *contracts.ToolContract) error {
	for name, argType := range c.RequiredArgs {
		v, present := step.Args[name]
		if !present {
			return newErr(KindValidationError, step.ID, name, "missing required argument")
		}
		if err := checkResolvedOrDeferred(step.ID, name, argType, v); err != nil {
			return err
		}
	}
	for name, v := range step.Args {
		argType, required := c.RequiredArgs[name]
		if !required {
			var optional bool
			argType, optional = c.OptionalArgs[name]
			if !optional {
				return newErr(KindValidationError, step.ID, name, "unexpected argument for tool %q", c.Name)
			}
		}
		if err := checkResolvedOrDeferred(step.ID, name, argType, v); err != nil {
			return err
		}
	}
	return nil
}

// checkResolvedOrDeferred type-checks v unless it is a $from placeholder,
// whose type can only be known once the plan actually runs.
func checkResolvedOrDeferred(stepID, field string, argType contracts.ArgType, v any) error {
	if _, _, isRef := plan.IsFromPlaceholder(v); isRef {
		return nil
	}
	if err := checkArgType(argType, v); err != nil {
		return newErr(KindValidationError, stepID, field, "%s", describeTypeError(argType, err))
	}
	return nil
}

func describeTypeError(argType contracts.ArgType, err error) string {
	return fmt.Sprintf("expected type %s: %v", argType, err)
}
