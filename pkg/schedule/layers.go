// Package schedule turns a dependency graph into ordered layers of
// step indices that can each run fully in parallel, via Kahn's
// algorithm.
package schedule

import (
	"sort"

	"github.com/quietloop/planrunner/pkg/dag"
)

// BuildLayers repeatedly peels the set of zero-in-degree nodes off g,
// returning each peel as a sorted layer. It reports dag.ErrCycleDetected
// if nodes remain once no further progress can be made.
func BuildLayers(g *dag.Graph) ([][]int, error) {
	inDegree := make([]int, g.N)
	for _, tos := range g.Forward {
		for _, to := range tos {
			inDegree[to]++
		}
	}

	remaining := g.N
	done := make([]bool, g.N)
	var layers [][]int

	for remaining > 0 {
		var layer []int
		for i := 0; i < g.N; i++ {
			if !done[i] && inDegree[i] == 0 {
				layer = append(layer, i)
			}
		}
		if len(layer) == 0 {
			return nil, dag.ErrCycleDetected
		}
		sort.Ints(layer)
		for _, n := range layer {
			done[n] = true
			remaining--
			for _, next := range g.Forward[n] {
				inDegree[next]--
			}
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
