// Package recur reduces the coverage relation to the set of checks
// which can't be derived from any other one.
package recur

import (
	"slices"

	"github.com/twmb/algoimpl/go/graph"
	"tlog.app/go/errors"

	"github.com/LegendarySHT/MAIR-sub000/compiler/cover"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/set"
)

type (
	// Graph has an edge k -> d for every unblocked coverage edge.
	// Vertices are mop ids, adjacency lists are sorted.
	Graph struct {
		n int

		succ [][]mop.ID
		pred [][]mop.ID

		used set.Bitmap // mops in at least one edge
	}

	Reduction struct {
		Keep []mop.ID

		// By is the mop whose check justifies removing the check of mop i.
		// It's ir.None for kept mops.
		By []mop.ID
	}
)

func Build(mops []mop.MOP, edges []cover.Edge) *Graph {
	g := &Graph{
		n:    len(mops),
		succ: make([][]mop.ID, len(mops)),
		pred: make([][]mop.ID, len(mops)),
		used: set.MakeBitmap(len(mops)),
	}

	for _, e := range edges {
		if e.Blocked || e.Killing == e.Dead {
			continue
		}

		g.succ[e.Killing] = append(g.succ[e.Killing], e.Dead)
		g.pred[e.Dead] = append(g.pred[e.Dead], e.Killing)

		g.used.Set(int(e.Killing))
		g.used.Set(int(e.Dead))
	}

	for v := range g.succ {
		g.succ[v] = sortUniq(g.succ[v])
		g.pred[v] = sortUniq(g.pred[v])
	}

	return g
}

func (g *Graph) Len() int { return g.n }

func (g *Graph) Succs(v mop.ID) []mop.ID { return g.succ[v] }

func (g *Graph) Preds(v mop.ID) []mop.ID { return g.pred[v] }

// Used reports whether v takes part in an edge.
func (g *Graph) Used(v mop.ID) bool { return g.used.IsSet(int(v)) }

// Components returns strongly connected components of the used vertices.
// Each component is sorted, components are ordered by their lowest id.
func (g *Graph) Components() [][]mop.ID {
	ag := graph.New(graph.Directed)
	nodes := make(map[mop.ID]graph.Node, g.used.Size())

	g.used.Range(func(i int) bool {
		n := ag.MakeNode()
		*n.Value = mop.ID(i)
		nodes[mop.ID(i)] = n

		return true
	})

	for k, ds := range g.succ {
		for _, d := range ds {
			err := ag.MakeEdge(nodes[mop.ID(k)], nodes[d])
			if err != nil {
				panic(errors.Wrap(err, "edge %d -> %d", k, d))
			}
		}
	}

	var comps [][]mop.ID

	for _, c := range ag.StronglyConnectedComponents() {
		ids := make([]mop.ID, len(c))

		for i, n := range c {
			ids[i] = (*n.Value).(mop.ID)
		}

		slices.Sort(ids)

		comps = append(comps, ids)
	}

	slices.SortFunc(comps, func(a, b []mop.ID) int {
		return int(a[0] - b[0])
	})

	return comps
}

// Minimal picks the lowest id of every component without incoming edges
// from other components and removes everything reachable from it.
// Mops outside of the graph are kept.
func (g *Graph) Minimal() Reduction {
	r := Reduction{
		By: make([]mop.ID, g.n),
	}

	for i := range r.By {
		r.By[i] = ir.None
	}

	comps := g.Components()

	comp := make([]int, g.n)
	for ci, c := range comps {
		for _, v := range c {
			comp[v] = ci
		}
	}

	visited := set.MakeBitmap(g.n)

	for _, c := range comps {
		if g.entered(c, comp) {
			continue
		}

		rep := c[0]
		if visited.IsSet(int(rep)) {
			continue
		}

		g.walk(rep, &visited, r.By)
	}

	for v := 0; v < g.n; v++ {
		if !g.Used(mop.ID(v)) || r.By[v] == ir.None {
			r.Keep = append(r.Keep, mop.ID(v))
		}
	}

	return r
}

// entered reports whether some vertex of c has a predecessor outside of c.
func (g *Graph) entered(c []mop.ID, comp []int) bool {
	ci := comp[c[0]]

	for _, v := range c {
		for _, p := range g.pred[v] {
			if comp[p] != ci {
				return true
			}
		}
	}

	return false
}

func (g *Graph) walk(root mop.ID, visited *set.Bitmap, by []mop.ID) {
	visited.Set(int(root))

	stack := []mop.ID{root}

	for len(stack) != 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, s := range g.succ[v] {
			if visited.IsSet(int(s)) {
				continue
			}

			visited.Set(int(s))
			by[s] = v

			stack = append(stack, s)
		}
	}
}

// Removed returns removed mops in id order.
func (r Reduction) Removed() (ids []mop.ID) {
	for v, by := range r.By {
		if by != ir.None {
			ids = append(ids, mop.ID(v))
		}
	}

	return ids
}

// Root follows the By chain from v to the kept mop covering it.
func (r Reduction) Root(v mop.ID) mop.ID {
	for r.By[v] != ir.None {
		v = r.By[v]
	}

	return v
}

func sortUniq(s []mop.ID) []mop.ID {
	slices.Sort(s)

	return slices.Compact(s)
}
