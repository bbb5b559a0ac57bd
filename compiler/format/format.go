// Package format renders functions as text listings,
// optionally annotated with reduction results.
package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
)

type notes map[ir.Inst]string

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	switch x := x.(type) {
	case *ir.Func:
		return formatFunc(ctx, b, x, nil)
	case *reduce.Result:
		return formatFunc(ctx, b, x.Func, resultNotes(x))
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func resultNotes(r *reduce.Result) notes {
	n := notes{}

	for _, k := range r.Keep {
		n[r.MOPs[k].Inst] = "check"
	}

	for _, rm := range r.Removed {
		by := r.Func.InstName(r.MOPs[rm.By].Inst)

		n[r.MOPs[rm.MOP].Inst] = "covered by " + by + " (" + rm.Side.String() + ")"
	}

	return n
}

func formatFunc(ctx context.Context, b []byte, f *ir.Func, n notes) (_ []byte, err error) {
	b = app(b, 0, "func %s {\n", f.Name)

	for bi := range f.Blocks {
		b, err = formatBlock(ctx, b, f, ir.Block(bi), n, 1)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", f.BlockName(ir.Block(bi)))
		}
	}

	b = app(b, 0, "}\n")

	return b, nil
}

func formatBlock(ctx context.Context, b []byte, f *ir.Func, blk ir.Block, n notes, d int) (_ []byte, err error) {
	b = app(b, d-1, "%s:", f.BlockName(blk))

	for i, s := range f.Succs(blk) {
		if i == 0 {
			b = append(b, " ->"...)
		}

		b = app(b, 0, " %s", f.BlockName(s))
	}

	b = append(b, '\n')

	for _, id := range f.Code(blk) {
		b, err = formatInstr(ctx, b, f, id, d)
		if err != nil {
			return nil, errors.Wrap(err, "instruction %v", f.InstName(id))
		}

		if note, ok := n[id]; ok {
			b = app(b, 0, "\t// %s", note)
		}

		b = append(b, '\n')
	}

	return b, nil
}

func formatInstr(ctx context.Context, b []byte, f *ir.Func, id ir.Inst, d int) ([]byte, error) {
	x := &f.Insts[id]

	if x.Op > ir.Ret {
		return nil, errors.New("unsupported op: %v", x.Op)
	}

	b = app(b, d, "%s = %v", f.InstName(id), x.Op)

	if x.Ordering != ir.NotAtomic {
		b = app(b, 0, " %v", x.Ordering)
	}

	if x.Op.Accesses() {
		b = app(b, 0, " %s", f.Ptrs[x.Loc.Ptr].Name)

		if x.Loc.SizeKnown() {
			b = app(b, 0, ":%d", x.Loc.Size)
		}
	}

	if x.Len != ir.NoSym {
		b = app(b, 0, " len#%d", x.Len)
	}

	if x.Mask != ir.NoSym {
		b = app(b, 0, " mask#%d", x.Mask)
	}

	if x.Volatile {
		b = append(b, " volatile"...)
	}

	if x.Pure {
		b = append(b, " pure"...)
	}

	if x.NoCheck {
		b = append(b, " nocheck"...)
	}

	return b, nil
}

// MOPs renders the mop table of f.
func MOPs(b []byte, f *ir.Func, mops []mop.MOP) []byte {
	for _, m := range mops {
		b = app(b, 0, "%d\t%s\t%v\t%s\n", m.ID, f.InstName(m.Inst), m.Kind, f.BlockName(m.Block))
	}

	return b
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
