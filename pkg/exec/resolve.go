// Package exec resolves a step's arguments against prior results,
// dispatches it to the right backend, retries it per its tool
// contract, and normalizes whatever the backend returned.
package exec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quietloop/planrunner/pkg/plan"
)

// ErrDependencyMissing is returned when a $from reference points at a
// step id that has not (yet, or ever) produced a result.
var ErrDependencyMissing = errors.New("exec: dependency missing from execution state")

// StateReader is the read-only view of ExecutionState the executor
// needs; kept minimal so this package doesn't import pkg/runner.
type StateReader interface {
	Get(id string) (any, bool)
}

// ResolveArguments walks args, replacing every {"$from": id|[ids]}
// placeholder with the referenced step's (already normalized) output.
func ResolveArguments(args map[string]any, state StateReader) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		resolved, err := resolveValue(v, state)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, state StateReader) (any, error) {
	if refs, isList, ok := plan.IsFromPlaceholder(v); ok {
		return resolveRefs(refs, isList, state)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			r, err := resolveValue(vv, state)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			r, err := resolveValue(vv, state)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveRefs(refs []string, isList bool, state StateReader) (any, error) {
	values := make([]any, 0, len(refs))
	for _, id := range refs {
		v, ok := state.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: step %q", ErrDependencyMissing, id)
		}
		values = append(values, v)
	}
	if !isList && len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// NormalizeOutput unwraps the various MCP-style result envelopes
// (structuredContent, content[], contents[]) into native Go values,
// decoding any text payload that happens to be JSON. When an envelope
// carries several items, list-typed decoded payloads are concatenated;
// a single-item envelope is unwrapped to that item's value.
func NormalizeOutput(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	if sc, ok := m["structuredContent"]; ok {
		return sc
	}
	for _, key := range []string{"content", "contents"} {
		if arr, ok := m[key].([]any); ok {
			return normalizeContentArray(arr)
		}
	}
	return raw
}

func normalizeContentArray(arr []any) any {
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		im, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		if text, ok := im["text"].(string); ok {
			decoded := decodeMaybeJSON(text)
			if list, isList := decoded.([]any); isList && len(arr) > 1 {
				out = append(out, list...)
			} else {
				out = append(out, decoded)
			}
			continue
		}
		out = append(out, item)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func decodeMaybeJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
