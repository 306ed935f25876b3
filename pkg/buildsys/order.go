package buildsys

import (
	"container/heap"
	"sort"

	"github.com/rotisserie/eris"
)

// indexHeap orders ready tasks by registration index
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Plan resolves the given targets into the order their tasks would run in. Nothing is executed.
//
// The result contains every target and all of their transitive dependencies. Before and
// After constraints only add ordering between tasks that are already part of that set.
// Among tasks whose constraints are satisfied, the one registered first goes first.
func (g *Graph) Plan(targets ...string) ([]string, error) {
	if len(targets) == 0 {
		return nil, eris.New("no target specified")
	}

	members, err := g.closure(targets)
	if err != nil {
		return nil, err
	}

	edges, err := g.edges(members)
	if err != nil {
		return nil, err
	}

	indeg := make(map[int]int, len(members))
	for _, idx := range members {
		for _, to := range edges[idx] {
			indeg[to]++
		}
	}

	ready := &indexHeap{}
	for _, idx := range members {
		if indeg[idx] == 0 {
			heap.Push(ready, idx)
		}
	}

	order := make([]string, 0, len(members))
	for ready.Len() > 0 {
		idx := heap.Pop(ready).(int)
		order = append(order, g.names[idx])

		for _, to := range edges[idx] {
			indeg[to]--
			if indeg[to] == 0 {
				heap.Push(ready, to)
			}
		}
	}

	if len(order) < len(members) {
		remaining := make([]int, 0, len(members)-len(order))
		for _, idx := range members {
			if indeg[idx] > 0 {
				remaining = append(remaining, idx)
			}
		}

		return nil, &CycleError{Tasks: g.findCycle(remaining, edges)}
	}

	return order, nil
}

// closure collects the targets and their transitive deps as sorted registration indices.
func (g *Graph) closure(targets []string) ([]int, error) {
	seen := make(map[string]bool)
	stack := make([]string, 0, len(targets))

	for _, name := range targets {
		if _, ok := g.tasks[name]; !ok {
			return nil, &UnknownTaskError{Name: name}
		}

		if !seen[name] {
			seen[name] = true
			stack = append(stack, name)
		}
	}

	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, dep := range g.tasks[name].Deps {
			if _, ok := g.tasks[dep]; !ok {
				return nil, &UnknownTaskError{Name: dep, ReferencedBy: name}
			}

			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	members := make([]int, 0, len(seen))
	for _, name := range g.names {
		if seen[name] {
			members = append(members, g.index[name])
		}
	}

	return members, nil
}

// edges returns the outgoing edges (from must run before to) among the given members.
func (g *Graph) edges(members []int) (map[int][]int, error) {
	inSet := make(map[int]bool, len(members))
	for _, idx := range members {
		inSet[idx] = true
	}

	result := make(map[int][]int, len(members))
	known := make(map[[2]int]bool)
	addEdge := func(from, to int) {
		key := [2]int{from, to}
		if !known[key] {
			known[key] = true
			result[from] = append(result[from], to)
		}
	}

	for _, idx := range members {
		task := g.tasks[g.names[idx]]

		for _, dep := range task.Deps {
			addEdge(g.index[dep], idx)
		}

		for _, other := range task.Before {
			otherIdx, ok := g.index[other]
			if !ok {
				return nil, &UnknownTaskError{Name: other, ReferencedBy: task.Name}
			}

			if inSet[otherIdx] {
				addEdge(idx, otherIdx)
			}
		}

		for _, other := range task.After {
			otherIdx, ok := g.index[other]
			if !ok {
				return nil, &UnknownTaskError{Name: other, ReferencedBy: task.Name}
			}

			if inSet[otherIdx] {
				addEdge(otherIdx, idx)
			}
		}
	}

	for from := range result {
		sort.Ints(result[from])
	}

	return result, nil
}

// findCycle runs a DFS over the given nodes (in index order) and returns the first cycle it finds.
func (g *Graph) findCycle(nodes []int, edges map[int][]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[int]int, len(nodes))
	stack := make([]int, 0, len(nodes))
	var cycle []int

	var visit func(idx int) bool
	visit = func(idx int) bool {
		color[idx] = gray
		stack = append(stack, idx)

		for _, next := range edges[idx] {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				for pos := len(stack) - 1; pos >= 0; pos-- {
					if stack[pos] == next {
						cycle = append(cycle, stack[pos:]...)
						break
					}
				}
				return true
			}
		}

		stack = stack[:len(stack)-1]
		color[idx] = black
		return false
	}

	for _, idx := range nodes {
		if color[idx] == white && visit(idx) {
			break
		}
	}

	names := make([]string, len(cycle))
	for pos, idx := range cycle {
		names[pos] = g.names[idx]
	}
	return names
}
