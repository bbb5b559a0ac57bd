package ir

import (
	"strconv"

	"tlog.app/go/errors"
)

func NewFunc(name string) *Func {
	return &Func{Name: name}
}

func (f *Func) AddBlock(name string) Block {
	f.Blocks = append(f.Blocks, BlockData{Name: name})

	return Block(len(f.Blocks) - 1)
}

// Edge adds a control flow edge. Preds are computed by Link.
func (f *Func) Edge(from, to Block) {
	f.Blocks[from].Succs = append(f.Blocks[from].Succs, to)
}

func (f *Func) AddObject(o Object) Obj {
	f.Objects = append(f.Objects, o)

	return Obj(len(f.Objects) - 1)
}

func (f *Func) AddPtr(p Pointer) Ptr {
	f.Ptrs = append(f.Ptrs, p)

	return Ptr(len(f.Ptrs) - 1)
}

// ObjectPtr returns a new pointer to the start of o.
func (f *Func) ObjectPtr(name string, o Obj, def Block) Ptr {
	return f.AddPtr(Pointer{Kind: PtrObject, Obj: o, Base: None, Def: def, Name: name})
}

func (f *Func) OffsetPtr(name string, base Ptr, off int64, def Block) Ptr {
	return f.AddPtr(Pointer{Kind: PtrOffset, Obj: None, Base: base, Offset: off, Def: def, Name: name})
}

func (f *Func) IndexPtr(name string, base Ptr, def Block) Ptr {
	return f.AddPtr(Pointer{Kind: PtrIndex, Obj: None, Base: base, Def: def, Name: name})
}

func (f *Func) OpaquePtr(name string, def Block) Ptr {
	return f.AddPtr(Pointer{Kind: PtrUnknown, Obj: None, Base: None, Def: def, Name: name})
}

// Add appends instruction x to block b.
func (f *Func) Add(b Block, x Instr) Inst {
	x.Block = b

	id := Inst(len(f.Insts))
	f.Insts = append(f.Insts, x)

	f.Blocks[b].Code = append(f.Blocks[b].Code, id)

	return id
}

// Link computes predecessors and instruction positions
// and checks that every id refers to an existing entity.
// It must be called after the function is built and before it's analyzed.
func (f *Func) Link() error {
	if len(f.Blocks) == 0 {
		return errors.New("func %v: no blocks", f.Name)
	}

	for b := range f.Blocks {
		f.Blocks[b].Preds = f.Blocks[b].Preds[:0]
	}

	for b, bd := range f.Blocks {
		for _, s := range bd.Succs {
			if s < 0 || int(s) >= len(f.Blocks) {
				return errors.New("block %v: successor %d out of range", bd.Name, s)
			}

			f.Blocks[s].Preds = append(f.Blocks[s].Preds, Block(b))
		}
	}

	f.pos = make([]int, len(f.Insts))

	for i := range f.pos {
		f.pos[i] = None
	}

	for b, bd := range f.Blocks {
		for j, id := range bd.Code {
			if id < 0 || int(id) >= len(f.Insts) {
				return errors.New("block %v: instruction %d out of range", bd.Name, id)
			}

			if f.pos[id] != None {
				return errors.New("instruction %d is placed twice", id)
			}

			f.pos[id] = j
			f.Insts[id].Block = Block(b)
		}
	}

	for id, x := range f.Insts {
		if f.pos[id] == None {
			return errors.New("instruction %d (%v) is not placed in any block", id, x.Op)
		}

		if !x.Op.Accesses() {
			continue
		}

		if x.Loc.Ptr < 0 || int(x.Loc.Ptr) >= len(f.Ptrs) {
			return errors.New("instruction %d (%v): pointer %d out of range", id, x.Op, x.Loc.Ptr)
		}
	}

	for id, p := range f.Ptrs {
		switch p.Kind {
		case PtrObject:
			if p.Obj < 0 || int(p.Obj) >= len(f.Objects) {
				return errors.New("pointer %v: object %d out of range", p.Name, p.Obj)
			}
		case PtrOffset, PtrIndex:
			if p.Base < 0 || int(p.Base) >= id {
				return errors.New("pointer %v: base %d must be defined before it", p.Name, p.Base)
			}
		}

		if p.Def != None && (p.Def < 0 || int(p.Def) >= len(f.Blocks)) {
			return errors.New("pointer %v: defining block %d out of range", p.Name, p.Def)
		}
	}

	return nil
}

func (f *Func) NumBlocks() int { return len(f.Blocks) }

func (f *Func) Entry() Block { return 0 }

func (f *Func) Preds(b Block) []Block { return f.Blocks[b].Preds }

func (f *Func) Succs(b Block) []Block { return f.Blocks[b].Succs }

func (f *Func) Code(b Block) []Inst { return f.Blocks[b].Code }

func (f *Func) BlockOf(i Inst) Block { return f.Insts[i].Block }

// Pos returns the index of i within its block.
func (f *Func) Pos(i Inst) int { return f.pos[i] }

// ReversePostorder returns blocks reachable from the entry
// in reverse postorder of a depth-first walk.
func (f *Func) ReversePostorder() []Block {
	seen := make([]bool, len(f.Blocks))
	post := make([]Block, 0, len(f.Blocks))

	type frame struct {
		b Block
		i int
	}

	stack := []frame{{b: f.Entry()}}
	seen[f.Entry()] = true

	for len(stack) != 0 {
		top := &stack[len(stack)-1]
		succs := f.Blocks[top.b].Succs

		if top.i < len(succs) {
			s := succs[top.i]
			top.i++

			if !seen[s] {
				seen[s] = true
				stack = append(stack, frame{b: s})
			}

			continue
		}

		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}

	return post
}

// Clobbers reports whether the instruction may write memory
// with externally visible side effects.
func (f *Func) Clobbers(i Inst) bool {
	x := &f.Insts[i]

	return x.Op == Call && !x.Pure
}

// Acquires reports whether the instruction is an atomic access
// or a fence with acquire ordering.
func (f *Func) Acquires(i Inst) bool {
	x := &f.Insts[i]

	return (x.Op == Atomic || x.Op == Fence || x.Op == Load) && x.Ordering.Acquires()
}

// Releases reports whether the instruction is an atomic access
// or a fence with release ordering.
func (f *Func) Releases(i Inst) bool {
	x := &f.Insts[i]

	return (x.Op == Atomic || x.Op == Fence || x.Op == Store) && x.Ordering.Releases()
}

// Find returns the instruction with the given name.
func (f *Func) Find(name string) (Inst, bool) {
	for id, x := range f.Insts {
		if x.Name == name {
			return Inst(id), true
		}
	}

	return None, false
}

func (f *Func) BlockName(b Block) string {
	if n := f.Blocks[b].Name; n != "" {
		return n
	}

	return "b" + strconv.Itoa(int(b))
}

func (f *Func) InstName(i Inst) string {
	if n := f.Insts[i].Name; n != "" {
		return n
	}

	return "i" + strconv.Itoa(int(i))
}
