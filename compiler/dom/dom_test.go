package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

//	entry -> head -> body -> head
//	         head -> exit
//	entry -> side -> exit
func loopy(t *testing.T) (*ir.Func, map[string]ir.Inst) {
	f := ir.NewFunc("loopy")

	entry := f.AddBlock("entry")
	head := f.AddBlock("head")
	body := f.AddBlock("body")
	side := f.AddBlock("side")
	exit := f.AddBlock("exit")

	f.Edge(entry, head)
	f.Edge(entry, side)
	f.Edge(head, body)
	f.Edge(head, exit)
	f.Edge(body, head)
	f.Edge(side, exit)

	ins := map[string]ir.Inst{}
	add := func(b ir.Block, name string) {
		ins[name] = f.Add(b, ir.Instr{Op: ir.Nop, Name: name})
	}

	add(entry, "e0")
	add(entry, "e1")
	add(head, "h")
	add(body, "b")
	add(side, "s")
	add(exit, "x0")
	add(exit, "x1")

	require.NoError(t, f.Link())

	return f, ins
}

func TestDominators(t *testing.T) {
	f, _ := loopy(t)
	d := New(f)

	assert.Equal(t, -1, d.Dom.Idom(0))
	assert.Equal(t, 0, d.Dom.Idom(1))
	assert.Equal(t, 1, d.Dom.Idom(2))
	assert.Equal(t, 0, d.Dom.Idom(3))
	assert.Equal(t, 0, d.Dom.Idom(4))

	assert.True(t, d.DominatesBlock(0, 2))
	assert.True(t, d.DominatesBlock(1, 2))
	assert.True(t, d.DominatesBlock(2, 2))
	assert.False(t, d.DominatesBlock(1, 4))
	assert.False(t, d.DominatesBlock(3, 4))
}

func TestPostDominators(t *testing.T) {
	f, _ := loopy(t)
	d := New(f)

	assert.True(t, d.PostDominatesBlock(4, 0))
	assert.True(t, d.PostDominatesBlock(4, 2))
	assert.True(t, d.PostDominatesBlock(1, 2))
	assert.False(t, d.PostDominatesBlock(1, 0))
	assert.False(t, d.PostDominatesBlock(2, 1))
}

func TestInstructions(t *testing.T) {
	f, ins := loopy(t)
	d := New(f)

	assert.True(t, d.Dominates(ins["e0"], ins["e1"]))
	assert.False(t, d.Dominates(ins["e1"], ins["e0"]))
	assert.False(t, d.Dominates(ins["e0"], ins["e0"]))
	assert.True(t, d.Dominates(ins["e1"], ins["b"]))
	assert.False(t, d.Dominates(ins["s"], ins["x0"]))

	assert.True(t, d.PostDominates(ins["x1"], ins["x0"]))
	assert.True(t, d.PostDominates(ins["x0"], ins["e1"]))
	assert.False(t, d.PostDominates(ins["h"], ins["e0"]))
	assert.True(t, d.PostDominates(ins["h"], ins["b"]))
}

func TestInfiniteLoop(t *testing.T) {
	f := ir.NewFunc("spin")

	entry := f.AddBlock("entry")
	spin := f.AddBlock("spin")

	f.Edge(entry, spin)
	f.Edge(spin, spin)

	a := f.Add(entry, ir.Instr{Op: ir.Nop})
	b := f.Add(spin, ir.Instr{Op: ir.Nop})

	require.NoError(t, f.Link())

	d := New(f)

	assert.True(t, d.Dominates(a, b))
	assert.False(t, d.PostDominates(b, a))
	assert.False(t, d.Post.Reachable(int(spin)))
}
