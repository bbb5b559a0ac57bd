// Package fixture reads functions described in YAML.
//
//	funcs:
//	- name: f
//	  objects:
//	  - {name: buf, kind: stack, size: 16}
//	  pointers:
//	  - {name: p, object: buf}
//	  - {name: p4, base: p, offset: 4, def: entry}
//	  - {name: arg}
//	  blocks:
//	  - name: entry
//	    succs: [exit]
//	    code:
//	    - {op: store, name: w, ptr: p, size: 4}
//	    - {op: call, pure: true}
//	    - {op: memset, ptr: p4, len: n}
//	  - name: exit
//	    code:
//	    - {op: ret}
package fixture

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
)

type (
	File struct {
		Funcs []Func `yaml:"funcs"`
	}

	Func struct {
		Name string `yaml:"name"`

		Objects  []Object  `yaml:"objects"`
		Pointers []Pointer `yaml:"pointers"`
		Blocks   []Block   `yaml:"blocks"`

		Expect []Expect `yaml:"expect"`
	}

	Object struct {
		Name string `yaml:"name"`
		Kind string `yaml:"kind"`
		Size *int64 `yaml:"size"`
	}

	Pointer struct {
		Name string `yaml:"name"`

		Object string `yaml:"object"`
		Base   string `yaml:"base"`
		Offset int64  `yaml:"offset"`
		Index  bool   `yaml:"index"`

		Def string `yaml:"def"`
	}

	Block struct {
		Name  string   `yaml:"name"`
		Succs []string `yaml:"succs"`
		Code  []Instr  `yaml:"code"`
	}

	Instr struct {
		Op   string `yaml:"op"`
		Name string `yaml:"name"`

		Ptr  string `yaml:"ptr"`
		Size *int64 `yaml:"size"`
		Len  string `yaml:"len"`
		Mask string `yaml:"mask"`

		Ordering string `yaml:"ordering"`

		Volatile bool `yaml:"volatile"`
		Pure     bool `yaml:"pure"`
		NoCheck  bool `yaml:"nocheck"`
	}

	// Expect is the reduction result a function must produce in a mode.
	Expect struct {
		Mode Mode     `yaml:"mode"`
		Keep []string `yaml:"keep"`

		// Checks maps instruction names to sanitizer lists
		// when the reduction is planned for Sanitizers.
		Sanitizers string            `yaml:"sanitizers"`
		Checks     map[string]string `yaml:"checks"`
	}

	Mode struct {
		Race             bool `yaml:"race"`
		WriteSensitive   bool `yaml:"write_sensitive"`
		SkipInterference bool `yaml:"skip_interference"`
		IgnoreCalls      bool `yaml:"ignore_calls"`
		AllowVolatile    bool `yaml:"allow_volatile"`
		Threshold        int  `yaml:"threshold"`
	}

	builder struct {
		f *ir.Func

		blocks  map[string]ir.Block
		objects map[string]ir.Obj
		ptrs    map[string]ir.Ptr
		syms    map[string]ir.Sym
	}
)

var objKinds = map[string]ir.ObjKind{
	"":       ir.ObjStack,
	"stack":  ir.ObjStack,
	"global": ir.ObjGlobal,
	"heap":   ir.ObjHeap,
}

func ReadFile(name string) (*File, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var x File

	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)

	err := d.Decode(&x)
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}

	return &x, nil
}

// Find returns the function with the given name.
func (x *File) Find(name string) (*Func, bool) {
	for i := range x.Funcs {
		if x.Funcs[i].Name == name {
			return &x.Funcs[i], true
		}
	}

	return nil, false
}

// Build converts the description into a linked function.
func (x *Func) Build() (_ *ir.Func, err error) {
	b := &builder{
		f:       ir.NewFunc(x.Name),
		blocks:  map[string]ir.Block{},
		objects: map[string]ir.Obj{},
		ptrs:    map[string]ir.Ptr{},
		syms:    map[string]ir.Sym{},
	}

	for _, bl := range x.Blocks {
		if _, ok := b.blocks[bl.Name]; ok || bl.Name == "" {
			return nil, errors.New("block %q: duplicate or empty name", bl.Name)
		}

		b.blocks[bl.Name] = b.f.AddBlock(bl.Name)
	}

	for _, o := range x.Objects {
		err = b.object(o)
		if err != nil {
			return nil, errors.Wrap(err, "object %v", o.Name)
		}
	}

	for _, p := range x.Pointers {
		err = b.pointer(p)
		if err != nil {
			return nil, errors.Wrap(err, "pointer %v", p.Name)
		}
	}

	for _, bl := range x.Blocks {
		id := b.blocks[bl.Name]

		for _, s := range bl.Succs {
			sid, ok := b.blocks[s]
			if !ok {
				return nil, errors.New("block %v: unknown successor %q", bl.Name, s)
			}

			b.f.Edge(id, sid)
		}

		for i, in := range bl.Code {
			err = b.instr(id, in)
			if err != nil {
				return nil, errors.Wrap(err, "block %v: instruction %d", bl.Name, i)
			}
		}
	}

	err = b.f.Link()
	if err != nil {
		return nil, errors.Wrap(err, "link")
	}

	return b.f, nil
}

func (b *builder) object(o Object) error {
	if _, ok := b.objects[o.Name]; ok || o.Name == "" {
		return errors.New("duplicate or empty name")
	}

	k, ok := objKinds[o.Kind]
	if !ok {
		return errors.New("unknown kind: %q", o.Kind)
	}

	size := ir.Unknown
	if o.Size != nil {
		size = *o.Size
	}

	b.objects[o.Name] = b.f.AddObject(ir.Object{Kind: k, Size: size, Name: o.Name})

	return nil
}

func (b *builder) pointer(p Pointer) error {
	if _, ok := b.ptrs[p.Name]; ok || p.Name == "" {
		return errors.New("duplicate or empty name")
	}

	def := ir.Block(ir.None)

	if p.Def != "" {
		d, ok := b.blocks[p.Def]
		if !ok {
			return errors.New("unknown block: %q", p.Def)
		}

		def = d
	}

	var id ir.Ptr

	switch {
	case p.Object != "" && p.Base != "":
		return errors.New("both object and base set")
	case p.Object != "":
		o, ok := b.objects[p.Object]
		if !ok {
			return errors.New("unknown object: %q", p.Object)
		}

		id = b.f.ObjectPtr(p.Name, o, def)
	case p.Base != "":
		base, ok := b.ptrs[p.Base]
		if !ok {
			return errors.New("unknown base: %q", p.Base)
		}

		if p.Index {
			id = b.f.IndexPtr(p.Name, base, def)
		} else {
			id = b.f.OffsetPtr(p.Name, base, p.Offset, def)
		}
	default:
		id = b.f.OpaquePtr(p.Name, def)
	}

	b.ptrs[p.Name] = id

	return nil
}

func (b *builder) instr(blk ir.Block, in Instr) error {
	op, ok := ir.ParseOp(in.Op)
	if !ok {
		return errors.New("unknown op: %q", in.Op)
	}

	ord, ok := ir.ParseOrdering(in.Ordering)
	if !ok {
		return errors.New("unknown ordering: %q", in.Ordering)
	}

	x := ir.Instr{
		Op:       op,
		Ordering: ord,
		Volatile: in.Volatile,
		Pure:     in.Pure,
		NoCheck:  in.NoCheck,
		Name:     in.Name,
		Len:      b.sym(in.Len),
		Mask:     b.sym(in.Mask),
	}

	if in.Name != "" {
		if _, dup := b.f.Find(in.Name); dup {
			return errors.New("duplicate name: %q", in.Name)
		}
	}

	if op.Accesses() {
		p, ok := b.ptrs[in.Ptr]
		if !ok {
			return errors.New("%v: unknown pointer: %q", op, in.Ptr)
		}

		x.Loc = ir.Loc{Ptr: p, Size: ir.Unknown}

		if in.Size != nil {
			x.Loc.Size = *in.Size
		}
	} else if in.Ptr != "" {
		return errors.New("%v doesn't access memory", op)
	}

	b.f.Add(blk, x)

	return nil
}

func (b *builder) sym(name string) ir.Sym {
	if name == "" {
		return ir.NoSym
	}

	s, ok := b.syms[name]
	if !ok {
		s = ir.Sym(len(b.syms) + 1)
		b.syms[name] = s
	}

	return s
}
