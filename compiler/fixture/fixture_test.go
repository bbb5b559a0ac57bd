package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

const text = `
funcs:
- name: f
  objects:
  - {name: buf, kind: heap, size: 16}
  pointers:
  - {name: p, object: buf, def: entry}
  - {name: p4, base: p, offset: 4, def: entry}
  - {name: pi, base: p, index: true, def: loop}
  - {name: arg}
  blocks:
  - name: entry
    succs: [loop]
    code:
    - {op: store, name: w, ptr: p, size: 4}
    - {op: memset, name: set, ptr: p4, len: n}
  - name: loop
    succs: [loop, exit]
    code:
    - {op: load, name: r, ptr: pi, size: 1, volatile: true}
    - {op: call, name: c, pure: true}
    - {op: atomic, name: a, ptr: arg, size: 8, ordering: acq_rel}
    - {op: masked_store, name: m, ptr: arg, mask: k}
    - {op: memcpy, name: cp, ptr: p, len: n, nocheck: true}
  - name: exit
    code:
    - {op: ret}
  expect:
  - mode: {race: true, write_sensitive: true}
    keep: [w, r]
`

func TestBuild(t *testing.T) {
	x, err := Parse([]byte(text))
	require.NoError(t, err)

	fx, ok := x.Find("f")
	require.True(t, ok)

	require.Len(t, fx.Expect, 1)
	assert.True(t, fx.Expect[0].Mode.Race)
	assert.True(t, fx.Expect[0].Mode.WriteSensitive)
	assert.Equal(t, []string{"w", "r"}, fx.Expect[0].Keep)

	f, err := fx.Build()
	require.NoError(t, err)

	assert.Len(t, f.Blocks, 3)
	assert.Equal(t, []ir.Block{0, 1}, f.Preds(1))

	get := func(name string) *ir.Instr {
		id, ok := f.Find(name)
		require.True(t, ok, name)

		return &f.Insts[id]
	}

	w := get("w")
	assert.Equal(t, ir.Store, w.Op)
	assert.Equal(t, int64(4), w.Loc.Size)
	assert.Equal(t, "p", f.Ptrs[w.Loc.Ptr].Name)

	set := get("set")
	assert.Equal(t, ir.Unknown, set.Loc.Size)
	assert.Equal(t, set.Len, get("cp").Len)
	assert.NotEqual(t, ir.NoSym, set.Len)
	assert.NotEqual(t, set.Len, get("m").Mask)

	assert.True(t, get("r").Volatile)
	assert.True(t, get("c").Pure)
	assert.True(t, get("cp").NoCheck)
	assert.Equal(t, ir.AcqRel, get("a").Ordering)

	pi := f.Ptrs[get("r").Loc.Ptr]
	assert.Equal(t, ir.PtrIndex, pi.Kind)
	assert.Equal(t, ir.Block(1), pi.Def)

	assert.Equal(t, ir.PtrUnknown, f.Ptrs[get("a").Loc.Ptr].Kind)
	assert.Equal(t, ir.ObjHeap, f.Objects[0].Kind)

	aid, _ := f.Find("a")
	assert.True(t, f.Acquires(aid))
	assert.True(t, f.Releases(aid))
}

func TestErrors(t *testing.T) {
	for _, tc := range []string{
		``,
		`funcs: [{name: f, blocks: [{name: a}, {name: a}]}]`,
		`funcs: [{name: f, blocks: [{name: a, succs: [b]}]}]`,
		`funcs: [{name: f, blocks: [{name: a, code: [{op: jump}]}]}]`,
		`funcs: [{name: f, blocks: [{name: a, code: [{op: load, ptr: p}]}]}]`,
		`funcs: [{name: f, blocks: [{name: a, code: [{op: call, ptr: p}]}], pointers: [{name: p}]}]`,
		`funcs: [{name: f, blocks: [{name: a, code: [{op: load, ptr: p, ordering: weird}]}], pointers: [{name: p}]}]`,
		`funcs: [{name: f, blocks: [{name: a}], pointers: [{name: p, base: q}]}]`,
		`funcs: [{name: f, blocks: [{name: a}], pointers: [{name: p, object: o}]}]`,
		`funcs: [{name: f, blocks: [{name: a}], objects: [{name: o, kind: tls}]}]`,
		`funcs: [{name: f, blocks: [{name: a}], extra: 1}]`,
		`funcs: [{name: f}]`,
	} {
		x, err := Parse([]byte(tc))
		if err != nil {
			continue
		}

		for _, f := range x.Funcs {
			_, err = f.Build()
			assert.Error(t, err, "%s", tc)
		}
	}
}
