package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
)

func TestFunc(t *testing.T) {
	f := ir.NewFunc("branch")
	entry := f.AddBlock("entry")
	then := f.AddBlock("")
	exit := f.AddBlock("exit")

	f.Edge(entry, then)
	f.Edge(entry, exit)
	f.Edge(then, exit)

	o := f.AddObject(ir.Object{Kind: ir.ObjHeap, Size: 16, Name: "buf"})
	p := f.ObjectPtr("buf", o, entry)

	f.Add(entry, ir.Instr{Op: ir.Load, Loc: ir.Loc{Ptr: p, Size: 8}, Name: "r"})
	f.Add(then, ir.Instr{Op: ir.Call, Pure: true})
	f.Add(then, ir.Instr{Op: ir.Memset, Loc: ir.Loc{Ptr: p, Size: ir.Unknown}, Len: 1, Name: "m"})
	f.Add(exit, ir.Instr{Op: ir.Atomic, Ordering: ir.SeqCst, Loc: ir.Loc{Ptr: p, Size: 8}, Volatile: true, Name: "a"})
	f.Add(exit, ir.Instr{Op: ir.Ret})

	require.NoError(t, f.Link())

	b, err := Format(context.Background(), nil, f)
	require.NoError(t, err)

	assert.Equal(t, `func branch {
entry: -> b1 exit
	r = load buf:8
b1: -> exit
	i1 = call pure
	m = memset buf len#1
exit:
	a = atomic seq_cst buf:8 volatile
	i4 = ret
}
`, string(b))
}

func TestResult(t *testing.T) {
	f := ir.NewFunc("same_slot")
	b := f.AddBlock("entry")
	o := f.AddObject(ir.Object{Kind: ir.ObjStack, Size: 4, Name: "slot"})
	p := f.ObjectPtr("slot", o, b)

	f.Add(b, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "w1"})
	f.Add(b, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "w2"})
	f.Add(b, ir.Instr{Op: ir.Load, Loc: ir.Loc{Ptr: p, Size: 4}, NoCheck: true, Name: "r"})

	require.NoError(t, f.Link())

	mops := mop.Collect(f)

	res, err := reduce.Reduce(context.Background(), f, nil, mops, reduce.Options{})
	require.NoError(t, err)

	out, err := Format(context.Background(), nil, res)
	require.NoError(t, err)

	assert.Equal(t, `func same_slot {
entry:
	w1 = store slot:4	// check
	w2 = store slot:4	// covered by w1 (dom)
	r = load slot:4 nocheck
}
`, string(out))

	assert.Equal(t, "0\tw1\twrite\tentry\n1\tw2\twrite\tentry\n", string(MOPs(nil, f, mops)))
}

func TestUnsupported(t *testing.T) {
	_, err := Format(context.Background(), nil, 1)
	assert.Error(t, err)

	f := ir.NewFunc("bad")
	b := f.AddBlock("entry")
	f.Add(b, ir.Instr{Op: ir.Ret + 1})

	_, err = Format(context.Background(), nil, f)
	assert.Error(t, err)
}
