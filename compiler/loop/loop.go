package loop

import (
	"github.com/LegendarySHT/MAIR-sub000/compiler/dom"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/set"
)

type (
	Loop struct {
		Header ir.Block
		Blocks set.Bitmap
	}

	Info struct {
		f *ir.Func

		Loops []Loop

		inner       []int // block -> innermost loop
		irreducible bool
	}
)

// New finds natural loops of f. Loops sharing a header are merged.
func New(f *ir.Func, d *dom.Info) *Info {
	l := &Info{
		f:     f,
		inner: make([]int, len(f.Blocks)),
	}

	byHeader := map[ir.Block]int{}

	for _, t := range f.ReversePostorder() {
		for _, h := range f.Succs(t) {
			if !d.DominatesBlock(h, t) {
				continue
			}

			li, ok := byHeader[h]
			if !ok {
				li = len(l.Loops)
				byHeader[h] = li

				bs := set.MakeBitmap(len(f.Blocks))
				bs.Set(int(h))

				l.Loops = append(l.Loops, Loop{Header: h, Blocks: bs})
			}

			l.body(&l.Loops[li], t)
		}
	}

	for b := range l.inner {
		l.inner[b] = ir.None

		for li := range l.Loops {
			if !l.Loops[li].Blocks.IsSet(b) {
				continue
			}

			if cur := l.inner[b]; cur == ir.None || l.Loops[li].Blocks.Size() < l.Loops[cur].Blocks.Size() {
				l.inner[b] = li
			}
		}
	}

	l.irreducible = irreducible(f, d)

	return l
}

func (l *Info) body(lp *Loop, tail ir.Block) {
	q := []ir.Block{tail}

	for len(q) != 0 {
		b := q[len(q)-1]
		q = q[:len(q)-1]

		if lp.Blocks.IsSet(int(b)) {
			continue
		}

		lp.Blocks.Set(int(b))

		q = append(q, l.f.Preds(b)...)
	}
}

func (l *Info) Innermost(b ir.Block) int { return l.inner[b] }

func (l *Info) Irreducible() bool { return l.irreducible }

// Invariant reports whether p and the pointers it's derived from
// are all defined outside of the innermost loop containing b.
func (l *Info) Invariant(p ir.Ptr, b ir.Block) bool {
	li := l.inner[b]
	if li == ir.None {
		return true
	}

	body := &l.Loops[li].Blocks

	for p != ir.None {
		x := &l.f.Ptrs[p]

		if x.Def != ir.None && body.IsSet(int(x.Def)) {
			return false
		}

		switch x.Kind {
		case ir.PtrOffset, ir.PtrIndex:
			p = x.Base
		default:
			p = ir.None
		}
	}

	return true
}

// irreducible reports whether some retreating edge of a depth-first walk
// enters a block that doesn't dominate the edge source.
func irreducible(f *ir.Func, d *dom.Info) bool {
	const (
		white = iota
		grey
		black
	)

	color := make([]int8, len(f.Blocks))

	type frame struct {
		b ir.Block
		i int
	}

	stack := []frame{{b: f.Entry()}}
	color[f.Entry()] = grey

	for len(stack) != 0 {
		top := &stack[len(stack)-1]
		succs := f.Succs(top.b)

		if top.i == len(succs) {
			color[top.b] = black
			stack = stack[:len(stack)-1]

			continue
		}

		s := succs[top.i]
		top.i++

		switch color[s] {
		case white:
			color[s] = grey
			stack = append(stack, frame{b: s})
		case grey:
			if !d.DominatesBlock(s, top.b) {
				return true
			}
		}
	}

	return false
}
