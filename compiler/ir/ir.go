package ir

import "tlog.app/go/tlog/tlwire"

type (
	Block int
	Inst  int
	Ptr   int
	Obj   int

	// Sym is an opaque value id: a length or mask operand
	// compared by identity only. Zero means no operand.
	Sym int

	Op       uint8
	Ordering uint8
	ObjKind  uint8
	PtrKind  uint8

	Func struct {
		Name string

		Blocks  []BlockData
		Insts   []Instr
		Ptrs    []Pointer
		Objects []Object

		pos []int // Inst -> index in its block code
	}

	BlockData struct {
		Name string

		Code  []Inst
		Preds []Block
		Succs []Block
	}

	Instr struct {
		Op    Op
		Block Block

		Loc  Loc
		Len  Sym // memcpy/memset length operand
		Mask Sym // masked store mask operand

		Ordering Ordering

		Volatile bool
		Pure     bool // call without memory side effects
		NoCheck  bool // already instrumented

		Name string
	}

	// Loc is a memory location: a pointer and an access size in bytes.
	Loc struct {
		Ptr  Ptr
		Size int64
	}

	Pointer struct {
		Kind PtrKind

		Obj    Obj   // PtrObject
		Base   Ptr   // PtrOffset, PtrIndex
		Offset int64 // PtrOffset

		Def Block // defining block, None for arguments and globals

		Name string
	}

	Object struct {
		Kind ObjKind
		Size int64

		Name string
	}
)

const (
	Nop Op = iota
	Load
	Store
	Atomic
	Call
	Memcpy
	Memset
	MaskedStore
	Fence
	Ret
)

const (
	NotAtomic Ordering = iota
	Relaxed
	Acquire
	Release
	AcqRel
	SeqCst
)

const (
	ObjStack ObjKind = iota
	ObjGlobal
	ObjHeap
)

const (
	PtrUnknown PtrKind = iota // opaque value: argument, loaded pointer, phi
	PtrObject                 // address of an object start
	PtrOffset                 // Base + constant Offset
	PtrIndex                  // Base + variable index
)

// None marks an absent id of any kind.
const None = -1

const NoSym Sym = 0

// Unknown is an access or object size not known statically.
const Unknown int64 = -1

var opNames = []string{
	Nop:         "nop",
	Load:        "load",
	Store:       "store",
	Atomic:      "atomic",
	Call:        "call",
	Memcpy:      "memcpy",
	Memset:      "memset",
	MaskedStore: "masked_store",
	Fence:       "fence",
	Ret:         "ret",
}

var orderingNames = []string{
	NotAtomic: "",
	Relaxed:   "relaxed",
	Acquire:   "acquire",
	Release:   "release",
	AcqRel:    "acq_rel",
	SeqCst:    "seq_cst",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}

	return "op?"
}

func ParseOp(s string) (Op, bool) {
	for op, n := range opNames {
		if n == s {
			return Op(op), true
		}
	}

	return Nop, false
}

func (o Ordering) String() string {
	if int(o) < len(orderingNames) {
		return orderingNames[o]
	}

	return "ordering?"
}

func ParseOrdering(s string) (Ordering, bool) {
	for o, n := range orderingNames {
		if n == s {
			return Ordering(o), true
		}
	}

	return NotAtomic, false
}

// Acquires reports whether the ordering has acquire semantics.
func (o Ordering) Acquires() bool {
	return o == Acquire || o == AcqRel || o == SeqCst
}

// Releases reports whether the ordering has release semantics.
func (o Ordering) Releases() bool {
	return o == Release || o == AcqRel || o == SeqCst
}

// Accesses reports whether the op reads or writes memory at Loc.
func (op Op) Accesses() bool {
	switch op {
	case Load, Store, Atomic, Memcpy, Memset, MaskedStore:
		return true
	}

	return false
}

func (l Loc) SizeKnown() bool { return l.Size >= 0 }

func (l Loc) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt64(b, "ptr", int64(l.Ptr))
	b = e.AppendKeyInt64(b, "size", l.Size)

	return b
}
