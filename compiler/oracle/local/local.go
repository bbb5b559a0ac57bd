// Package local builds the oracle set of a function from the function alone.
package local

import (
	"github.com/LegendarySHT/MAIR-sub000/compiler/alias"
	"github.com/LegendarySHT/MAIR-sub000/compiler/dom"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/loop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
)

// New expects f to be linked.
func New(f *ir.Func) *oracle.Set {
	d := dom.New(f)
	a := alias.New(f)

	return &oracle.Set{
		CFG:     f,
		Effects: f,
		Dom:     d,
		Loops:   loop.New(f, d),
		Alias:   a,
		Objects: a,
	}
}
