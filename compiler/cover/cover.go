// Package cover decides whether one memory operation's check
// makes another one's check unnecessary.
//
// Killing covers Dead if all hold:
//   - Killing's access range contains Dead's;
//   - Killing dominates Dead, or Killing post-dominates Dead;
//   - in write sensitive mode a read doesn't cover a write.
//
// Interference along the paths between them is checked separately.
package cover

import (
	"context"

	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/LegendarySHT/MAIR-sub000/compiler/df"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
)

type (
	Options struct {
		// WriteSensitive forbids a read check to cover a write check.
		WriteSensitive bool

		// AllowVolatile lets volatile accesses take part in coverage.
		AllowVolatile bool
	}

	// Edge is a candidate coverage of Dead by Killing.
	Edge struct {
		Killing mop.ID
		Dead    mop.ID

		// Anchor is the instruction reached second.
		Anchor ir.Inst

		// Interference query: From is reached first, To second.
		From ir.Inst
		To   ir.Inst
		Side df.Side

		Blocked bool
	}

	Oracle struct {
		o    *oracle.Set
		opts Options
	}
)

func New(o *oracle.Set, opts Options) *Oracle {
	return &Oracle{o: o, opts: opts}
}

// Pairs returns every ordered pair of mops where the first covers the second
// ignoring interference.
func (c *Oracle) Pairs(ctx context.Context, mops []mop.MOP) (edges []Edge) {
	tr := tlog.SpanFromContext(ctx)

	for i := range mops {
		for j := range mops {
			if i == j {
				continue
			}

			e, ok := c.Covers(&mops[i], &mops[j])
			if !ok {
				continue
			}

			tr.V("cover").Printw("covers", "killing", e.Killing, "dead", e.Dead, "side", e.Side)

			edges = append(edges, e)
		}
	}

	return edges
}

func (c *Oracle) Covers(k, d *mop.MOP) (Edge, bool) {
	if k.ID == d.ID {
		return Edge{}, false
	}

	if c.opts.WriteSensitive && !k.Kind.Writes() && d.Kind.Writes() {
		return Edge{}, false
	}

	if !c.opts.AllowVolatile && (k.Volatile || d.Volatile) {
		return Edge{}, false
	}

	e, ok := c.Order(k, d)
	if !ok {
		return Edge{}, false
	}

	if !c.Contains(k, d) {
		return Edge{}, false
	}

	return e, true
}

// Order checks the dominance relation and fills in the edge anchor.
func (c *Oracle) Order(k, d *mop.MOP) (Edge, bool) {
	e := Edge{
		Killing: k.ID,
		Dead:    d.ID,
	}

	switch {
	case c.o.Dom.Dominates(k.Inst, d.Inst):
		e.From, e.To, e.Side = k.Inst, d.Inst, df.DomSide
	case c.o.Dom.PostDominates(k.Inst, d.Inst):
		e.From, e.To, e.Side = d.Inst, k.Inst, df.PostDomSide
	default:
		return Edge{}, false
	}

	e.Anchor = e.To

	return e, true
}

// Contains reports whether k's accessed range provably contains d's.
func (c *Oracle) Contains(k, d *mop.MOP) bool {
	if !c.loopIndependent(k, d) {
		return false
	}

	// A masked access may touch any subset of its range.
	if k.Masked() {
		return c.sameBulk(k, d)
	}

	if c.wholeObject(k, d) {
		return true
	}

	if !k.Loc.SizeKnown() || !d.Loc.SizeKnown() {
		return c.sameBulk(k, d)
	}

	ks, ds := k.Loc.Size, d.Loc.Size

	r := c.o.Alias.Alias(k.Loc, d.Loc)

	switch r.Kind {
	case oracle.NoAlias:
		return false
	case oracle.MustAlias:
		if ks >= ds {
			return true
		}
	case oracle.PartialAlias:
		if r.HasOffset && r.Offset >= 0 && r.Offset+ds <= ks {
			return true
		}
	}

	kr, koff, ok := c.o.Objects.Decompose(k.Loc.Ptr)
	if !ok {
		return false
	}

	dr, doff, ok := c.o.Objects.Decompose(d.Loc.Ptr)
	if !ok || kr != dr {
		return false
	}

	return doff >= koff && doff-koff+ds <= ks
}

// loopIndependent reports whether alias facts about the two pointers
// hold within one iteration of any enclosing loop.
func (c *Oracle) loopIndependent(k, d *mop.MOP) bool {
	if k.Block == d.Block {
		return true
	}

	l := c.o.Loops

	if !l.Irreducible() && l.Innermost(k.Block) == l.Innermost(d.Block) {
		return true
	}

	return l.Invariant(k.Loc.Ptr, k.Block) && l.Invariant(d.Loc.Ptr, d.Block)
}

// wholeObject reports whether k checks an entire identified object
// and d provably stays inside it.
func (c *Oracle) wholeObject(k, d *mop.MOP) bool {
	if !k.Loc.SizeKnown() || !d.Loc.SizeKnown() {
		return false
	}

	ob := c.o.Objects

	ko, ok := ob.Underlying(k.Loc.Ptr)
	if !ok {
		return false
	}

	do, ok := ob.Underlying(d.Loc.Ptr)
	if !ok || ko != do {
		return false
	}

	size, ok := ob.ObjectSize(ko)
	if !ok || k.Loc.Size != size {
		return false
	}

	if _, koff, ok := ob.Decompose(k.Loc.Ptr); !ok || koff != 0 {
		return false
	}

	_, doff, ok := ob.Decompose(d.Loc.Ptr)

	return ok && doff >= 0 && doff+d.Loc.Size <= size
}

// sameBulk handles accesses of statically unknown size.
func (c *Oracle) sameBulk(k, d *mop.MOP) bool {
	if k.Masked() || d.Masked() {
		return k.Masked() && d.Masked() && k.Mask == d.Mask && k.Loc == d.Loc
	}

	if k.Kind != d.Kind || k.Kind != mop.BulkCopy && k.Kind != mop.BulkSet {
		return false
	}

	if k.Len == ir.NoSym || k.Len != d.Len {
		return false
	}

	return c.o.Alias.Alias(k.Loc, d.Loc).Kind == oracle.MustAlias
}

func (e Edge) TlogAppend(b []byte) []byte {
	var en tlwire.Encoder

	b = en.AppendMap(b, 5)
	b = en.AppendKeyInt64(b, "killing", int64(e.Killing))
	b = en.AppendKeyInt64(b, "dead", int64(e.Dead))
	b = en.AppendKeyInt64(b, "anchor", int64(e.Anchor))
	b = en.AppendString(b, "side")
	b = en.AppendString(b, e.Side.String())
	b = en.AppendString(b, "blocked")
	b = en.AppendBool(b, e.Blocked)

	return b
}
