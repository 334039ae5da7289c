package dag

import (
	"fmt"
	"strings"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/plan"
)

// Build picks explicit or inferred mode and constructs the dependency
// graph accordingly: explicit mode is used whenever any step in the
// plan carries a non-empty $from; inferred mode only applies when every
// step's $from is empty.
func Build(p plan.Plan, registry *contracts.Registry) (*Graph, error) {
	for _, step := range p {
		if len(step.From) > 0 {
			return BuildExplicit(p)
		}
	}
	return BuildInferred(p, registry)
}

// BuildExplicit builds the graph solely from each step's $from
// references, ignoring tool contracts entirely.
func BuildExplicit(p plan.Plan) (*Graph, error) {
	g := newGraph(len(p))
	for i, step := range p {
		for _, ref := range step.From {
			j := p.ByID(ref)
			if j == -1 {
				return nil, fmt.Errorf("dag: step %q references unknown id %q", step.ID, ref)
			}
			g.addEdge(j, i)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

type effect struct {
	reads, writes           contracts.KeySet
	idempotent, commutative bool
	server                  string
}

// BuildInferred derives edges from each step's effective read/write
// sets: a read-after-write edge, a write/write conflict edge (skipped
// when both writers are commutative), and a conservative db-before-file
// edge whenever an earlier db step writes anything at all.
func BuildInferred(p plan.Plan, registry *contracts.Registry) (*Graph, error) {
	g := newGraph(len(p))

	effects := make([]effect, len(p))
	for i, step := range p {
		c, args, err := contractFor(step, registry)
		if err != nil {
			return nil, err
		}
		reads, writes, err := c.EffectiveKeys(args)
		if err != nil {
			return nil, fmt.Errorf("dag: resolving effective keys for step %q: %w", step.ID, err)
		}
		effects[i] = effect{
			reads: reads, writes: writes,
			idempotent: c.Idempotent, commutative: c.Commutative,
			server: step.Server,
		}
	}

	for i := 0; i < len(p); i++ {
		for j := i + 1; j < len(p); j++ {
			ei, ej := effects[i], effects[j]

			conflict := ei.writes.Intersects(ej.writes) && !(ei.commutative && ej.commutative)
			readAfterWrite := ei.writes.Intersects(ej.reads)
			crossServer := ei.server == "db" && ej.server == "file" && !ei.writes.Empty()

			if conflict || readAfterWrite || crossServer {
				g.addEdge(i, j)
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// contractFor returns the tool contract that applies to step, along with
// the argument map to resolve it against. Resource steps are matched to
// the registry's resource-read contract for their server.
func contractFor(step plan.Step, registry *contracts.Registry) (*contracts.ToolContract, map[string]any, error) {
	if step.Type == plan.StepTool {
		c, ok := registry.Get(step.Tool)
		if !ok {
			return nil, nil, fmt.Errorf("dag: unknown tool %q for step %q", step.Tool, step.ID)
		}
		return c, step.Args, nil
	}

	for _, name := range registry.Names() {
		c, _ := registry.Get(name)
		if c.IsResourceRead && c.Server == step.Server {
			path := strings.TrimSuffix(strings.TrimPrefix(step.URI, "file://"), "/")
			return c, map[string]any{"path": path}, nil
		}
	}
	return nil, nil, fmt.Errorf("dag: no resource contract registered for server %q (step %q)", step.Server, step.ID)
}
