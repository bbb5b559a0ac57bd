// Package dom computes dominator and post-dominator trees of ir functions.
//
// Trees are built with the iterative algorithm of Cooper, Harvey and Kennedy
// over reverse postorder and numbered in pre/post order,
// so dominance queries are O(1).
package dom

import (
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

type (
	Tree struct {
		r         int
		idom      []int
		pre, post []int32
	}

	Info struct {
		f *ir.Func

		Dom  Tree
		Post Tree // node len(f.Blocks) is the virtual exit
	}

	graph struct {
		n     int
		root  int
		succs func(v int) []int
		preds func(v int) []int
	}
)

func New(f *ir.Func) *Info {
	n := len(f.Blocks)

	conv := func(bs []ir.Block) []int {
		r := make([]int, len(bs))
		for i, b := range bs {
			r[i] = int(b)
		}

		return r
	}

	fwd := graph{
		n:     n,
		root:  int(f.Entry()),
		succs: func(v int) []int { return conv(f.Succs(ir.Block(v))) },
		preds: func(v int) []int { return conv(f.Preds(ir.Block(v))) },
	}

	var exits []int

	for b := range f.Blocks {
		if len(f.Succs(ir.Block(b))) == 0 {
			exits = append(exits, b)
		}
	}

	bwd := graph{
		n:    n + 1,
		root: n,
		succs: func(v int) []int {
			if v == n {
				return exits
			}

			return conv(f.Preds(ir.Block(v)))
		},
		preds: func(v int) []int {
			if v == n {
				return nil
			}

			s := conv(f.Succs(ir.Block(v)))
			if len(s) == 0 {
				s = append(s, n)
			}

			return s
		},
	}

	return &Info{
		f:    f,
		Dom:  build(fwd),
		Post: build(bwd),
	}
}

// Dominates reports whether instruction a strictly dominates b.
func (d *Info) Dominates(a, b ir.Inst) bool {
	ba, bb := d.f.BlockOf(a), d.f.BlockOf(b)

	if ba == bb {
		return d.f.Pos(a) < d.f.Pos(b)
	}

	return d.Dom.Dominates(int(ba), int(bb))
}

// PostDominates reports whether instruction a strictly post-dominates b.
func (d *Info) PostDominates(a, b ir.Inst) bool {
	ba, bb := d.f.BlockOf(a), d.f.BlockOf(b)

	if ba == bb {
		return d.f.Pos(a) > d.f.Pos(b)
	}

	return d.Post.Dominates(int(ba), int(bb))
}

func (d *Info) DominatesBlock(a, b ir.Block) bool {
	return d.Dom.Dominates(int(a), int(b))
}

func (d *Info) PostDominatesBlock(a, b ir.Block) bool {
	return d.Post.Dominates(int(a), int(b))
}

// Idom returns the immediate dominator of v or -1 for the root and unreachable nodes.
func (t *Tree) Idom(v int) int {
	if v == t.r {
		return -1
	}

	return t.idom[v]
}

// Dominates reports whether a dominates b. Every node dominates itself.
// Nodes unreachable from the root dominate nothing and are dominated by nothing.
func (t *Tree) Dominates(a, b int) bool {
	if t.pre[a] < 0 || t.pre[b] < 0 {
		return false
	}

	return t.pre[a] <= t.pre[b] && t.post[b] <= t.post[a]
}

func (t *Tree) Reachable(v int) bool { return t.pre[v] >= 0 }

func build(g graph) (t Tree) {
	rpo := reversePostorder(g)

	num := make([]int, g.n)
	for i := range num {
		num[i] = -1
	}

	for i, v := range rpo {
		num[v] = i
	}

	idom := make([]int, g.n)
	for i := range idom {
		idom[i] = -1
	}

	idom[g.root] = g.root

	intersect := func(a, b int) int {
		for a != b {
			for num[a] > num[b] {
				a = idom[a]
			}

			for num[b] > num[a] {
				b = idom[b]
			}
		}

		return a
	}

	for changed := true; changed; {
		changed = false

		for _, v := range rpo[1:] {
			n := -1

			for _, p := range g.preds(v) {
				if idom[p] == -1 {
					continue
				}

				if n == -1 {
					n = p
				} else {
					n = intersect(p, n)
				}
			}

			if n != idom[v] {
				idom[v] = n
				changed = true
			}
		}
	}

	children := make([][]int, g.n)

	for _, v := range rpo[1:] {
		children[idom[v]] = append(children[idom[v]], v)
	}

	t.r = g.root
	t.idom = idom
	t.pre = make([]int32, g.n)
	t.post = make([]int32, g.n)

	for v := range t.pre {
		t.pre[v] = -1
		t.post[v] = -1
	}

	type frame struct {
		v, i int
	}

	var pre, post int32

	stack := []frame{{v: g.root}}
	t.pre[g.root] = pre
	pre++

	for len(stack) != 0 {
		top := &stack[len(stack)-1]

		if top.i < len(children[top.v]) {
			c := children[top.v][top.i]
			top.i++

			t.pre[c] = pre
			pre++

			stack = append(stack, frame{v: c})

			continue
		}

		t.post[top.v] = post
		post++

		stack = stack[:len(stack)-1]
	}

	return t
}

func reversePostorder(g graph) []int {
	seen := make([]bool, g.n)
	post := make([]int, 0, g.n)

	type frame struct {
		v, i int
		s    []int
	}

	stack := []frame{{v: g.root, s: g.succs(g.root)}}
	seen[g.root] = true

	for len(stack) != 0 {
		top := &stack[len(stack)-1]

		if top.i < len(top.s) {
			w := top.s[top.i]
			top.i++

			if !seen[w] {
				seen[w] = true
				stack = append(stack, frame{v: w, s: g.succs(w)})
			}

			continue
		}

		post = append(post, top.v)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}

	return post
}
