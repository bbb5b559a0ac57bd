// Package ssafront lowers Go functions in ssa form
// to the memory operation model of the reduction engine.
package ssafront

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
	"tlog.app/go/errors"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

type (
	Lowered struct {
		Func *ir.Func
		SSA  *ssa.Function

		// Instrs is the ssa origin of each ir instruction.
		Instrs []ssa.Instruction
	}

	lowerer struct {
		fn    *ssa.Function
		sizes types.Sizes

		f      *ir.Func
		instrs []ssa.Instruction

		ptrs map[ssa.Value]ir.Ptr
	}
)

var pureBuiltins = map[string]bool{
	"len":            true,
	"cap":            true,
	"min":            true,
	"max":            true,
	"real":           true,
	"imag":           true,
	"complex":        true,
	"ssa:wrapnilchk": true,
}

// Lower converts fn to ir. sizes may be nil for the gc amd64 layout.
func Lower(fn *ssa.Function, sizes types.Sizes) (_ *Lowered, err error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.New("%v: no body", fn)
	}

	for p := fn; p != nil; p = p.Parent() {
		if p.TypeParams().Len() != 0 && len(p.TypeArgs()) == 0 {
			return nil, errors.New("%v: generic function", fn)
		}
	}

	if sizes == nil {
		sizes = types.SizesFor("gc", "amd64")
	}

	l := &lowerer{
		fn:    fn,
		sizes: sizes,
		f:     ir.NewFunc(fn.String()),
		ptrs:  map[ssa.Value]ir.Ptr{},
	}

	for _, b := range fn.Blocks {
		l.f.AddBlock(b.Comment)
	}

	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			l.f.Edge(ir.Block(b.Index), ir.Block(s.Index))
		}

		for _, x := range b.Instrs {
			l.instr(ir.Block(b.Index), x)
		}
	}

	err = l.f.Link()
	if err != nil {
		return nil, errors.Wrap(err, "link %v", fn)
	}

	return &Lowered{
		Func:   l.f,
		SSA:    fn,
		Instrs: l.instrs,
	}, nil
}

// Pos returns the source position of instruction i, or the function position.
func (l *Lowered) Pos(i ir.Inst) token.Pos {
	x := l.Instrs[i]

	if p := x.Pos(); p.IsValid() {
		return p
	}

	for _, op := range x.Operands(nil) {
		if v, ok := (*op).(ssa.Instruction); ok && v.Pos().IsValid() {
			return v.Pos()
		}
	}

	return l.SSA.Pos()
}

func (l *lowerer) add(b ir.Block, origin ssa.Instruction, x ir.Instr) {
	l.f.Add(b, x)
	l.instrs = append(l.instrs, origin)
}

func (l *lowerer) instr(b ir.Block, x ssa.Instruction) {
	switch x := x.(type) {
	case *ssa.Store:
		l.add(b, x, ir.Instr{
			Op:  ir.Store,
			Loc: ir.Loc{Ptr: l.ptr(x.Addr), Size: l.sizeof(x.Val.Type())},
		})
	case *ssa.UnOp:
		if x.Op != token.MUL {
			return
		}

		l.add(b, x, ir.Instr{
			Op:   ir.Load,
			Loc:  ir.Loc{Ptr: l.ptr(x.X), Size: l.sizeof(x.Type())},
			Name: x.Name(),
		})
	case *ssa.Call:
		l.call(b, x, x.Common(), x.Name())
	case *ssa.Go:
		l.add(b, x, ir.Instr{Op: ir.Call})
	case *ssa.Defer:
		l.add(b, x, ir.Instr{Op: ir.Call})
	case *ssa.RunDefers, *ssa.MapUpdate, *ssa.Send, *ssa.Select, *ssa.Panic:
		l.add(b, x, ir.Instr{Op: ir.Call})
	case *ssa.Return:
		l.add(b, x, ir.Instr{Op: ir.Ret})
	}
}

func (l *lowerer) call(b ir.Block, x ssa.Instruction, c *ssa.CallCommon, name string) {
	if bt, ok := c.Value.(*ssa.Builtin); ok && pureBuiltins[bt.Name()] {
		return
	}

	if callee := c.StaticCallee(); callee != nil && callee.Pkg != nil && callee.Pkg.Pkg.Path() == "sync/atomic" && len(c.Args) != 0 {
		p := c.Args[0]

		if pt, ok := p.Type().Underlying().(*types.Pointer); ok {
			l.add(b, x, ir.Instr{
				Op:       ir.Atomic,
				Loc:      ir.Loc{Ptr: l.ptr(p), Size: l.sizeof(pt.Elem())},
				Ordering: ir.SeqCst,
				Name:     name,
			})

			return
		}
	}

	l.add(b, x, ir.Instr{Op: ir.Call, Name: name})
}

// ptr returns the ir pointer of an address value, creating it on first use.
func (l *lowerer) ptr(v ssa.Value) ir.Ptr {
	if p, ok := l.ptrs[v]; ok {
		return p
	}

	def := ir.Block(ir.None)

	if x, ok := v.(ssa.Instruction); ok && x.Block() != nil {
		def = ir.Block(x.Block().Index)
	}

	var p ir.Ptr

	switch v := v.(type) {
	case *ssa.Alloc:
		kind := ir.ObjStack
		if v.Heap {
			kind = ir.ObjHeap
		}

		o := l.f.AddObject(ir.Object{Kind: kind, Size: l.sizeof(deref(v.Type())), Name: v.Name()})
		p = l.f.ObjectPtr(v.Name(), o, def)
	case *ssa.Global:
		o := l.f.AddObject(ir.Object{Kind: ir.ObjGlobal, Size: l.sizeof(deref(v.Type())), Name: v.Name()})
		p = l.f.ObjectPtr(v.Name(), o, def)
	case *ssa.FieldAddr:
		base := l.ptr(v.X)

		off, ok := l.fieldOffset(deref(v.X.Type()), v.Field)
		if ok {
			p = l.f.OffsetPtr(v.Name(), base, off, def)
		} else {
			p = l.f.IndexPtr(v.Name(), base, def)
		}
	case *ssa.IndexAddr:
		base := l.ptr(v.X)

		off, ok := l.indexOffset(v)
		if ok {
			p = l.f.OffsetPtr(v.Name(), base, off, def)
		} else {
			p = l.f.IndexPtr(v.Name(), base, def)
		}
	default:
		p = l.f.OpaquePtr(v.Name(), def)
	}

	l.ptrs[v] = p

	return p
}

func (l *lowerer) fieldOffset(t types.Type, field int) (int64, bool) {
	st, ok := t.Underlying().(*types.Struct)
	if !ok || field >= st.NumFields() {
		return 0, false
	}

	fields := make([]*types.Var, st.NumFields())
	for i := range fields {
		fields[i] = st.Field(i)
	}

	return l.sizes.Offsetsof(fields)[field], true
}

func (l *lowerer) indexOffset(v *ssa.IndexAddr) (int64, bool) {
	c, ok := v.Index.(*ssa.Const)
	if !ok || c.Value == nil {
		return 0, false
	}

	var elem types.Type

	switch t := v.X.Type().Underlying().(type) {
	case *types.Slice:
		elem = t.Elem()
	case *types.Pointer:
		a, ok := t.Elem().Underlying().(*types.Array)
		if !ok {
			return 0, false
		}

		elem = a.Elem()
	default:
		return 0, false
	}

	size := l.sizeof(elem)
	if size < 0 {
		return 0, false
	}

	return c.Int64() * size, true
}

func (l *lowerer) sizeof(t types.Type) int64 {
	if t == nil {
		return ir.Unknown
	}

	return l.sizes.Sizeof(t)
}

func deref(t types.Type) types.Type {
	if p, ok := t.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}

	return t
}

// shortName is the function name relative to its package.
func shortName(fn *ssa.Function) string {
	if fn.Pkg != nil {
		return fn.RelString(fn.Pkg.Pkg)
	}

	return fn.String()
}
