// Package alias answers alias and object size queries
// by decomposing pointers into a root and a constant offset.
//
// Distinct identified objects never alias.
// Everything it can't prove is MayAlias.
package alias

import (
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
)

type (
	Analysis struct {
		f *ir.Func
	}
)

func New(f *ir.Func) *Analysis {
	return &Analysis{f: f}
}

func (a *Analysis) Decompose(p ir.Ptr) (root ir.Ptr, off int64, ok bool) {
	for {
		x := &a.f.Ptrs[p]

		switch x.Kind {
		case ir.PtrOffset:
			off += x.Offset
			p = x.Base
		case ir.PtrIndex:
			return ir.None, 0, false
		default:
			return p, off, true
		}
	}
}

func (a *Analysis) Underlying(p ir.Ptr) (ir.Obj, bool) {
	for {
		x := &a.f.Ptrs[p]

		switch x.Kind {
		case ir.PtrOffset, ir.PtrIndex:
			p = x.Base
		case ir.PtrObject:
			return x.Obj, true
		default:
			return ir.None, false
		}
	}
}

func (a *Analysis) ObjectSize(o ir.Obj) (int64, bool) {
	s := a.f.Objects[o].Size

	return s, s >= 0
}

func (a *Analysis) Alias(x, y ir.Loc) oracle.AliasResult {
	may := oracle.AliasResult{Kind: oracle.MayAlias}

	if ox, ok := a.Underlying(x.Ptr); ok {
		if oy, ok := a.Underlying(y.Ptr); ok && ox != oy {
			return oracle.AliasResult{Kind: oracle.NoAlias}
		}
	}

	rx, offx, okx := a.Decompose(x.Ptr)
	ry, offy, oky := a.Decompose(y.Ptr)

	if !okx || !oky || !a.same(rx, ry) {
		return may
	}

	d := offy - offx

	if d == 0 {
		return oracle.AliasResult{Kind: oracle.MustAlias}
	}

	if !x.SizeKnown() || !y.SizeKnown() {
		return may
	}

	if d > 0 && d >= x.Size || d < 0 && -d >= y.Size {
		return oracle.AliasResult{Kind: oracle.NoAlias}
	}

	return oracle.AliasResult{Kind: oracle.PartialAlias, Offset: d, HasOffset: true}
}

// same reports whether two roots are the same address.
func (a *Analysis) same(x, y ir.Ptr) bool {
	if x == y {
		return true
	}

	px, py := &a.f.Ptrs[x], &a.f.Ptrs[y]

	return px.Kind == ir.PtrObject && py.Kind == ir.PtrObject && px.Obj == py.Obj
}
