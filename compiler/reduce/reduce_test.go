package reduce

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegendarySHT/MAIR-sub000/compiler/df"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
)

func run(t *testing.T, f *ir.Func, opts Options) (*Result, map[string]mop.ID) {
	t.Helper()

	require.NoError(t, f.Link())

	mops := mop.Collect(f)

	res, err := Reduce(context.Background(), f, nil, mops, opts)
	require.NoError(t, err)

	names := map[string]mop.ID{}
	for _, m := range mops {
		names[f.InstName(m.Inst)] = m.ID
	}

	return res, names
}

func kept(res *Result) (r []string) {
	for _, k := range res.Keep {
		r = append(r, res.Func.InstName(res.MOPs[k].Inst))
	}

	return r
}

func TestSameSlot(t *testing.T) {
	f := ir.NewFunc("same_slot")
	b := f.AddBlock("entry")
	o := f.AddObject(ir.Object{Kind: ir.ObjStack, Size: 4, Name: "slot"})
	p := f.ObjectPtr("slot", o, b)

	f.Add(b, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "w1"})
	f.Add(b, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "w2"})

	res, n := run(t, f, Options{})

	assert.Equal(t, []string{"w1"}, kept(res))
	require.Len(t, res.Removed, 1)
	assert.Equal(t, Removed{MOP: n["w2"], By: n["w1"], Side: df.DomSide}, res.Removed[0])
	assert.True(t, res.Skipped)
}

func loopFunc(call bool) *ir.Func {
	f := ir.NewFunc("loop")

	entry := f.AddBlock("entry")
	head := f.AddBlock("head")
	next := f.AddBlock("next")
	exit := f.AddBlock("exit")

	f.Edge(entry, head)
	f.Edge(head, next)
	f.Edge(next, head)
	f.Edge(next, exit)

	o := f.AddObject(ir.Object{Kind: ir.ObjStack, Size: 8, Name: "buf"})
	p := f.ObjectPtr("buf", o, entry)

	f.Add(head, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 8}, Name: "w1"})

	if call {
		f.Add(head, ir.Instr{Op: ir.Call, Name: "call"})
	}

	f.Add(next, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "w2"})
	f.Add(exit, ir.Instr{Op: ir.Ret})

	return f
}

func TestLoop(t *testing.T) {
	for _, th := range []int{0, -1} {
		res, _ := run(t, loopFunc(false), Options{Threshold: th})

		assert.Equal(t, []string{"w1"}, kept(res), "threshold %d", th)
		assert.Equal(t, th == 0, res.Skipped)

		res, _ = run(t, loopFunc(true), Options{Threshold: th})

		assert.Equal(t, []string{"w1", "w2"}, kept(res), "threshold %d", th)

		for _, e := range res.Edges {
			assert.True(t, e.Blocked, "edge %+v", e)
		}

		res, _ = run(t, loopFunc(true), Options{Threshold: th, IgnoreCalls: true})

		assert.Equal(t, []string{"w1"}, kept(res), "threshold %d", th)

		res, _ = run(t, loopFunc(true), Options{Threshold: th, SkipInterference: true})

		assert.Equal(t, []string{"w1"}, kept(res), "threshold %d", th)
	}
}

func TestDisjoint(t *testing.T) {
	f := ir.NewFunc("disjoint")
	b := f.AddBlock("entry")
	o := f.AddObject(ir.Object{Kind: ir.ObjHeap, Size: 8, Name: "arr"})
	p := f.ObjectPtr("arr", o, b)
	p4 := f.OffsetPtr("arr4", p, 4, b)

	f.Add(b, ir.Instr{Op: ir.Load, Loc: ir.Loc{Ptr: p, Size: 4}, Name: "r"})
	f.Add(b, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p4, Size: 4}, Name: "w"})

	res, _ := run(t, f, Options{})

	assert.Equal(t, []string{"r", "w"}, kept(res))
	assert.Empty(t, res.Edges)
	assert.Empty(t, res.Removed)
}

func raceFunc(branch bool) *ir.Func {
	f := ir.NewFunc("race")

	entry := f.AddBlock("entry")
	last := entry

	x := f.AddObject(ir.Object{Kind: ir.ObjGlobal, Size: 8, Name: "x"})
	flag := f.AddObject(ir.Object{Kind: ir.ObjGlobal, Size: 4, Name: "flag"})

	p := f.ObjectPtr("x", x, ir.None)
	q := f.ObjectPtr("flag", flag, ir.None)

	f.Add(entry, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 8}, Name: "w1"})
	f.Add(entry, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: q, Size: 4}, Ordering: ir.Release, Name: "rel"})

	if branch {
		then := f.AddBlock("then")
		exit := f.AddBlock("exit")

		f.Edge(entry, then)
		f.Edge(entry, exit)
		f.Edge(then, exit)

		f.Add(exit, ir.Instr{Op: ir.Ret})

		last = then
	}

	f.Add(last, ir.Instr{Op: ir.Store, Loc: ir.Loc{Ptr: p, Size: 8}, Name: "w2"})

	return f
}

func TestRelease(t *testing.T) {
	res, n := run(t, raceFunc(false), Options{Race: true, WriteSensitive: true})

	var dom, post bool

	for _, e := range res.Edges {
		if e.Killing == n["w1"] && e.Dead == n["w2"] {
			dom = true

			assert.Equal(t, df.DomSide, e.Side)
			assert.True(t, e.Blocked)
		}

		if e.Killing == n["w2"] && e.Dead == n["w1"] {
			post = true

			assert.Equal(t, df.PostDomSide, e.Side)
			assert.False(t, e.Blocked)
		}
	}

	assert.True(t, dom)
	assert.True(t, post)

	// w1 is checked later, w2 is never checked early
	assert.Equal(t, []string{"rel", "w2"}, kept(res))

	res, _ = run(t, raceFunc(false), Options{WriteSensitive: true})
	assert.Equal(t, []string{"w1", "rel"}, kept(res))

	res, _ = run(t, raceFunc(true), Options{Race: true, WriteSensitive: true})
	assert.Equal(t, []string{"w1", "rel", "w2"}, kept(res))

	res, _ = run(t, raceFunc(true), Options{WriteSensitive: true})
	assert.Equal(t, []string{"w1", "rel"}, kept(res))
}

func TestIdempotent(t *testing.T) {
	for _, f := range []*ir.Func{loopFunc(false), loopFunc(true), raceFunc(false), raceFunc(true)} {
		res, _ := run(t, f, Options{Race: true})

		var mops []mop.MOP

		for _, k := range res.Keep {
			m := res.MOPs[k]
			m.ID = mop.ID(len(mops))

			mops = append(mops, m)
		}

		again, err := Reduce(context.Background(), f, nil, mops, Options{Race: true})
		require.NoError(t, err)

		assert.Len(t, again.Keep, len(mops), "func %v", f.Name)
		assert.Empty(t, again.Removed, "func %v", f.Name)
	}
}

func TestInvalidMOPs(t *testing.T) {
	f := loopFunc(false)
	require.NoError(t, f.Link())

	mops := mop.Collect(f)
	mops[1].ID = 0

	_, err := Reduce(context.Background(), f, nil, mops, Options{})
	assert.Error(t, err)
}

func TestAppendText(t *testing.T) {
	res, _ := run(t, loopFunc(false), Options{})

	text := string(res.AppendText(nil))

	assert.Contains(t, text, "func loop: 2 mops, 1 kept, 1 removed")
	assert.Contains(t, text, "keep 0 w1 write head [buf:8]")
	assert.Contains(t, text, "remove 1 w2 write next [buf:4]  by w1 (dom)")
}

func TestDFOptions(t *testing.T) {
	assert.Equal(t, df.Options{Race: true, Threshold: df.DefaultThreshold}, Options{Race: true}.DF())
	assert.Equal(t, df.Options{IgnoreCalls: true, Threshold: -1}, Options{IgnoreCalls: true, Threshold: -1}.DF())
	assert.Equal(t, df.Options{Threshold: 7}, Options{Threshold: 7, WriteSensitive: true}.DF())
}
