package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond(t *testing.T) *Func {
	f := NewFunc("diamond")

	entry := f.AddBlock("entry")
	then := f.AddBlock("then")
	els := f.AddBlock("else")
	exit := f.AddBlock("exit")

	f.Edge(entry, then)
	f.Edge(entry, els)
	f.Edge(then, exit)
	f.Edge(els, exit)

	o := f.AddObject(Object{Kind: ObjStack, Size: 8, Name: "x"})
	p := f.ObjectPtr("p", o, entry)

	f.Add(entry, Instr{Op: Store, Loc: Loc{Ptr: p, Size: 8}, Name: "st"})
	f.Add(then, Instr{Op: Call, Name: "call"})
	f.Add(els, Instr{Op: Fence, Ordering: Release, Name: "fence"})
	f.Add(exit, Instr{Op: Load, Loc: Loc{Ptr: p, Size: 8}, Name: "ld"})
	f.Add(exit, Instr{Op: Ret})

	require.NoError(t, f.Link())

	return f
}

func TestLink(t *testing.T) {
	f := diamond(t)

	assert.Equal(t, []Block{1, 2}, f.Preds(3))
	assert.Equal(t, []Block{0}, f.Preds(1))

	ld, ok := f.Find("ld")
	require.True(t, ok)

	assert.Equal(t, Block(3), f.BlockOf(ld))
	assert.Equal(t, 0, f.Pos(ld))
	assert.Equal(t, "i4", f.InstName(4))
	assert.Equal(t, "exit", f.BlockName(3))

	// relinking is stable
	require.NoError(t, f.Link())
	assert.Equal(t, []Block{1, 2}, f.Preds(3))
}

func TestLinkErrors(t *testing.T) {
	f := NewFunc("bad")
	assert.Error(t, f.Link())

	b := f.AddBlock("entry")
	f.Edge(b, 5)
	assert.Error(t, f.Link())

	f = NewFunc("bad_ptr")
	b = f.AddBlock("entry")
	f.Add(b, Instr{Op: Load, Loc: Loc{Ptr: 3, Size: 4}})
	assert.Error(t, f.Link())

	f = NewFunc("bad_base")
	b = f.AddBlock("entry")
	f.AddPtr(Pointer{Kind: PtrOffset, Base: 0, Def: None})
	assert.Error(t, f.Link())
}

func TestReversePostorder(t *testing.T) {
	f := diamond(t)

	rpo := f.ReversePostorder()
	require.Len(t, rpo, 4)

	assert.Equal(t, Block(0), rpo[0])
	assert.Equal(t, Block(3), rpo[3])

	// unreachable blocks are not visited
	f.AddBlock("dead")
	require.NoError(t, f.Link())
	assert.Len(t, f.ReversePostorder(), 4)
}

func TestEffects(t *testing.T) {
	f := diamond(t)

	call, _ := f.Find("call")
	fence, _ := f.Find("fence")
	st, _ := f.Find("st")

	assert.True(t, f.Clobbers(call))
	assert.False(t, f.Clobbers(st))
	assert.True(t, f.Releases(fence))
	assert.False(t, f.Acquires(fence))

	f.Insts[call].Pure = true
	assert.False(t, f.Clobbers(call))

	assert.True(t, SeqCst.Acquires())
	assert.True(t, SeqCst.Releases())
	assert.False(t, Relaxed.Releases())
}

func TestParse(t *testing.T) {
	op, ok := ParseOp("masked_store")
	assert.True(t, ok)
	assert.Equal(t, MaskedStore, op)

	_, ok = ParseOp("jump")
	assert.False(t, ok)

	o, ok := ParseOrdering("acq_rel")
	assert.True(t, ok)
	assert.Equal(t, AcqRel, o)
	assert.Equal(t, "acq_rel", o.String())
}
