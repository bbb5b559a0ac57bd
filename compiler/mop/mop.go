package mop

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

type (
	ID   int
	Kind uint8

	// MOP is a memory operation that would receive a runtime check.
	// It's identified by its instruction and referenced by ID,
	// which is its index in the table handed to the analyses.
	MOP struct {
		ID    ID
		Inst  ir.Inst
		Block ir.Block

		Kind Kind
		Loc  ir.Loc

		Len  ir.Sym
		Mask ir.Sym

		Volatile bool
	}
)

const (
	Read Kind = iota
	Write
	Atomic
	BulkCopy
	BulkSet
)

var kindNames = []string{
	Read:     "read",
	Write:    "write",
	Atomic:   "atomic",
	BulkCopy: "bulk_copy",
	BulkSet:  "bulk_set",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "kind?"
}

// Writes reports whether an operation of this kind may write memory.
func (k Kind) Writes() bool {
	return k != Read
}

func (m MOP) Masked() bool { return m.Mask != ir.NoSym }

// Collect builds the MOP table of f: one MOP for every memory access
// that is not marked as already checked.
func Collect(f *ir.Func) []MOP {
	var mops []MOP

	for _, b := range f.ReversePostorder() {
		for _, id := range f.Code(b) {
			x := &f.Insts[id]

			if x.NoCheck || !x.Op.Accesses() {
				continue
			}

			mops = append(mops, MOP{
				ID:       ID(len(mops)),
				Inst:     id,
				Block:    b,
				Kind:     kindOf(x),
				Loc:      x.Loc,
				Len:      x.Len,
				Mask:     x.Mask,
				Volatile: x.Volatile,
			})
		}
	}

	return mops
}

func kindOf(x *ir.Instr) Kind {
	switch x.Op {
	case ir.Load:
		if x.Ordering != ir.NotAtomic {
			return Atomic
		}

		return Read
	case ir.Store, ir.MaskedStore:
		if x.Ordering != ir.NotAtomic {
			return Atomic
		}

		return Write
	case ir.Atomic:
		return Atomic
	case ir.Memcpy:
		return BulkCopy
	case ir.Memset:
		return BulkSet
	}

	panic(x.Op)
}

// Validate checks that mops is a well formed table for f:
// ids equal indexes, each instruction is registered once
// and blocks match the instruction placement.
func Validate(f *ir.Func, mops []MOP) error {
	seen := make(map[ir.Inst]ID, len(mops))

	for i, m := range mops {
		if m.ID != ID(i) {
			return errors.New("mop %d: id %d does not match its index", i, m.ID)
		}

		if m.Inst < 0 || int(m.Inst) >= len(f.Insts) {
			return errors.New("mop %d: instruction %d out of range", i, m.Inst)
		}

		if prev, ok := seen[m.Inst]; ok {
			return errors.New("mop %d: instruction %v is already registered as mop %d", i, f.InstName(m.Inst), prev)
		}

		seen[m.Inst] = m.ID

		if b := f.BlockOf(m.Inst); b != m.Block {
			return errors.New("mop %d: block %v, but instruction %v is in %v", i, m.Block, f.InstName(m.Inst), f.BlockName(b))
		}
	}

	return nil
}

func (m MOP) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 5)
	b = e.AppendKeyInt64(b, "id", int64(m.ID))
	b = e.AppendKeyInt64(b, "inst", int64(m.Inst))
	b = e.AppendKeyInt64(b, "block", int64(m.Block))
	b = e.AppendString(b, "kind")
	b = e.AppendString(b, m.Kind.String())
	b = e.AppendString(b, "loc")
	b = m.Loc.TlogAppend(b)

	return b
}
