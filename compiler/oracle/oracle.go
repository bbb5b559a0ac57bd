// Package oracle declares the analyses the check reduction engine consumes
// but does not implement.
package oracle

import "github.com/LegendarySHT/MAIR-sub000/compiler/ir"

type (
	CFG interface {
		NumBlocks() int
		Entry() ir.Block
		Preds(b ir.Block) []ir.Block
		Succs(b ir.Block) []ir.Block
		Code(b ir.Block) []ir.Inst
		BlockOf(i ir.Inst) ir.Block
		Pos(i ir.Inst) int
		ReversePostorder() []ir.Block
	}

	Effects interface {
		Clobbers(i ir.Inst) bool
		Acquires(i ir.Inst) bool
		Releases(i ir.Inst) bool
	}

	Dominance interface {
		// Dominates reports whether a strictly dominates b.
		Dominates(a, b ir.Inst) bool
		// PostDominates reports whether a strictly post-dominates b.
		PostDominates(a, b ir.Inst) bool
	}

	Loops interface {
		// Innermost returns the innermost loop containing b or ir.None.
		Innermost(b ir.Block) int
		Irreducible() bool
		// Invariant reports whether p is the same value
		// on every iteration of the innermost loop containing b.
		Invariant(p ir.Ptr, b ir.Block) bool
	}

	Alias interface {
		Alias(a, b ir.Loc) AliasResult
	}

	Objects interface {
		// Underlying returns the identified object p points into.
		Underlying(p ir.Ptr) (ir.Obj, bool)
		ObjectSize(o ir.Obj) (int64, bool)
		// Decompose splits p into a root pointer and a constant offset.
		Decompose(p ir.Ptr) (root ir.Ptr, off int64, ok bool)
	}

	AliasKind uint8

	AliasResult struct {
		Kind AliasKind

		// Offset of b start relative to a start. Valid for PartialAlias if HasOffset.
		Offset    int64
		HasOffset bool
	}

	// Set is everything the engine needs to know about one function.
	Set struct {
		CFG     CFG
		Effects Effects
		Dom     Dominance
		Loops   Loops
		Alias   Alias
		Objects Objects
	}
)

const (
	NoAlias AliasKind = iota
	MayAlias
	PartialAlias
	MustAlias
)

func (k AliasKind) String() string {
	switch k {
	case NoAlias:
		return "NoAlias"
	case MayAlias:
		return "MayAlias"
	case PartialAlias:
		return "PartialAlias"
	case MustAlias:
		return "MustAlias"
	}

	return "AliasKind?"
}
