// Package df computes, for every block of a function and every memory operation,
// whether the operation's check is still in force when control enters or
// leaves the block.
//
// A check stops being in force after a clobbering call and, in race mode,
// after an acquire or release ordering event.
//
// Lattice per mop per program point, joined with bitwise or:
//
//	Reach Dead
//	  0    0    unreachable
//	  1    0    active
//	  1    1    reachable, but a call intervened
//
// Acq and Rel are independent bits tracking ordering events in race mode.
package df

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
	"github.com/LegendarySHT/MAIR-sub000/compiler/set"
)

type (
	// Side tells which ordering events interfere with a query.
	Side uint8

	Options struct {
		Race        bool
		IgnoreCalls bool

		// Threshold is the number of mops spanning several blocks
		// up to which the block analysis is not run
		// and cross block queries walk paths instead.
		Threshold int
	}

	// Invariant is what a block does to the lattice regardless of its input.
	Invariant struct {
		UseGen    set.Bitmap // mops in the block
		NotUseGen set.Bitmap

		// Local mops followed by a call, acquire or release in the block.
		Gen    set.Bitmap
		GenAcq set.Bitmap
		GenRel set.Bitmap

		Call    bool
		Acquire bool
		Release bool
	}

	State struct {
		Reach set.Bitmap
		Dead  set.Bitmap
		Acq   set.Bitmap
		Rel   set.Bitmap
	}

	BlockInfo struct {
		In  State
		Out State

		Inv *Invariant
	}

	Stats struct {
		Passes  int // worklist pops after the seeding pass
		Updates int // block outputs changed
	}

	Analysis struct {
		cfg  oracle.CFG
		eff  oracle.Effects
		opts Options

		mops   []mop.MOP
		byInst map[ir.Inst]mop.ID

		// Blocks is nil when the analysis was skipped.
		Blocks []BlockInfo

		rpoNum []int
		stats  Stats
	}

	worklist struct {
		heap.Heap[ir.Block]

		queued set.Bitmap
	}
)

const (
	// DomSide queries come from a check that dominates the other one.
	// Release events interfere.
	DomSide Side = iota
	// PostDomSide queries come from a check post-dominated by the other one.
	// Acquire events interfere.
	PostDomSide
)

// DefaultThreshold is the number of multi block mops below which
// running the fixpoint does not pay off.
const DefaultThreshold = 4

func (s Side) String() string {
	if s == DomSide {
		return "dom"
	}

	return "postdom"
}

// New registers mops and runs the analysis unless it's not worth it.
func New(ctx context.Context, cfg oracle.CFG, eff oracle.Effects, mops []mop.MOP, opts Options) *Analysis {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "df", "mops", len(mops), "blocks", cfg.NumBlocks(), "race", opts.Race)
	defer tr.Finish()

	a := &Analysis{
		cfg:    cfg,
		eff:    eff,
		opts:   opts,
		mops:   mops,
		byInst: make(map[ir.Inst]mop.ID, len(mops)),
	}

	for _, m := range mops {
		a.byInst[m.Inst] = m.ID
	}

	if !a.worth() {
		tr.V("df").Printw("analysis skipped", "mops", len(mops), "threshold", opts.Threshold)

		return a
	}

	a.run(ctx)

	if tr.If("dump_df") {
		for b, bi := range a.Blocks {
			tr.Printw("block", "b", b, "call", bi.Inv.Call, "acq", bi.Inv.Acquire, "rel", bi.Inv.Release,
				"in_reach", bi.In.Reach, "in_dead", bi.In.Dead, "out_reach", bi.Out.Reach, "out_dead", bi.Out.Dead)
		}
	}

	return a
}

func (a *Analysis) worth() bool {
	if len(a.mops) == 0 {
		return false
	}

	first := a.mops[0].Block

	multi := false
	for _, m := range a.mops {
		if m.Block != first {
			multi = true
			break
		}
	}

	return multi && len(a.mops) > a.opts.Threshold
}

// Skipped reports whether block states were not computed.
func (a *Analysis) Skipped() bool { return a.Blocks == nil }

func (a *Analysis) Stats() Stats { return a.stats }

func (a *Analysis) run(ctx context.Context) {
	tr := tlog.SpanFromContext(ctx)

	n := len(a.mops)
	nb := a.cfg.NumBlocks()

	a.Blocks = make([]BlockInfo, nb)

	for b := range a.Blocks {
		a.Blocks[b] = BlockInfo{
			In:  makeState(n),
			Out: makeState(n),
			Inv: a.invariant(ir.Block(b)),
		}
	}

	rpo := a.cfg.ReversePostorder()

	a.rpoNum = make([]int, nb)
	for b := range a.rpoNum {
		a.rpoNum[b] = -1
	}

	for i, b := range rpo {
		a.rpoNum[b] = i
	}

	wl := worklist{
		Heap: heap.Heap[ir.Block]{Less: func(d []ir.Block, i, j int) bool {
			return a.rpoNum[d[i]] < a.rpoNum[d[j]]
		}},
		queued: set.MakeBitmap(nb),
	}

	tmp := makeState(n)

	// Forward edges are final after one pass in reverse postorder,
	// so only retreating edges can leave stale inputs.
	for _, b := range rpo {
		if !a.visit(b, &tmp) {
			continue
		}

		for _, s := range a.cfg.Succs(b) {
			if a.rpoNum[s] <= a.rpoNum[b] {
				wl.push(s)
			}
		}
	}

	for wl.Len() != 0 {
		b := wl.pop()
		a.stats.Passes++

		if !a.visit(b, &tmp) {
			continue
		}

		tr.V("df_iter").Printw("block changed", "b", b, "out_reach", a.Blocks[b].Out.Reach, "out_dead", a.Blocks[b].Out.Dead)

		for _, s := range a.cfg.Succs(b) {
			wl.push(s)
		}
	}

	tr.V("df").Printw("fixpoint", "passes", a.stats.Passes, "updates", a.stats.Updates)
}

// visit recomputes In and Out of b and reports whether Out changed.
func (a *Analysis) visit(b ir.Block, tmp *State) bool {
	bi := &a.Blocks[b]

	bi.In.reset()

	for _, p := range a.cfg.Preds(b) {
		bi.In.merge(&a.Blocks[p].Out)
	}

	a.transfer(bi.Inv, &bi.In, tmp)

	if tmp.equal(&bi.Out) {
		return false
	}

	bi.Out.assign(tmp)
	a.stats.Updates++

	return true
}

func (a *Analysis) transfer(inv *Invariant, in, out *State) {
	out.assign(in)

	if inv.Call {
		out.Dead.Assign(in.Reach)
	}

	if inv.Acquire {
		out.Acq.Assign(in.Reach)
	}

	if inv.Release {
		out.Rel.Assign(in.Reach)
	}

	out.Reach.Or(inv.UseGen)

	out.Dead.And(inv.NotUseGen)
	out.Dead.Or(inv.Gen)

	out.Acq.And(inv.NotUseGen)
	out.Acq.Or(inv.GenAcq)

	out.Rel.And(inv.NotUseGen)
	out.Rel.Or(inv.GenRel)
}

// invariant scans the block backwards remembering
// whether a call or ordering event was already seen.
func (a *Analysis) invariant(b ir.Block) *Invariant {
	n := len(a.mops)

	inv := &Invariant{
		UseGen:    set.MakeBitmap(n),
		NotUseGen: set.MakeBitmap(n),
		Gen:       set.MakeBitmap(n),
		GenAcq:    set.MakeBitmap(n),
		GenRel:    set.MakeBitmap(n),
	}

	code := a.cfg.Code(b)

	for i := len(code) - 1; i >= 0; i-- {
		id := code[i]

		if m, ok := a.byInst[id]; ok {
			inv.UseGen.Set(int(m))

			if inv.Call {
				inv.Gen.Set(int(m))
			}

			if inv.Acquire {
				inv.GenAcq.Set(int(m))
			}

			if inv.Release {
				inv.GenRel.Set(int(m))
			}
		}

		inv.Call = inv.Call || a.clobbers(id)

		if a.opts.Race {
			inv.Acquire = inv.Acquire || a.eff.Acquires(id)
			inv.Release = inv.Release || a.eff.Releases(id)
		}
	}

	inv.NotUseGen.FillSet(0, n)
	inv.NotUseGen.AndNot(inv.UseGen)

	return inv
}

func (a *Analysis) clobbers(id ir.Inst) bool {
	return !a.opts.IgnoreCalls && a.eff.Clobbers(id)
}

// interferes reports whether instruction id invalidates checks made before it.
func (a *Analysis) interferes(id ir.Inst, side Side) bool {
	if a.clobbers(id) {
		return true
	}

	if !a.opts.Race {
		return false
	}

	if side == DomSide {
		return a.eff.Releases(id)
	}

	return a.eff.Acquires(id)
}

// Active reports whether the check of the mop at from is still in force at to
// on every path from one to the other.
// It panics if the query is malformed, see Query.
func (a *Analysis) Active(from, to ir.Inst, side Side) bool {
	ok, err := a.query(from, to, side)
	if err != nil {
		panic(errors.Wrap(err, "called from %v", loc.Caller(1)))
	}

	return ok
}

// Query is Active returning malformed query errors instead of panicking.
func (a *Analysis) Query(from, to ir.Inst, side Side) (bool, error) {
	return a.query(from, to, side)
}

func (a *Analysis) query(from, to ir.Inst, side Side) (bool, error) {
	m, ok := a.byInst[from]
	if !ok {
		return false, errors.New("instruction %d is not a registered mop", from)
	}

	bf, bt := a.cfg.BlockOf(from), a.cfg.BlockOf(to)
	pf, pt := a.cfg.Pos(from), a.cfg.Pos(to)

	if bf == bt {
		if pf >= pt {
			return false, errors.New("same block query from %d (pos %d) to %d (pos %d) runs backwards", from, pf, to, pt)
		}

		return a.clear(bf, pf+1, pt, side), nil
	}

	if a.Blocks == nil {
		return a.pathClear(bf, pf, bt, pt, side), nil
	}

	if !a.Blocks[bf].Out.active(int(m), side, a.opts.Race) {
		return false, nil
	}

	if !a.Blocks[bt].In.active(int(m), side, a.opts.Race) {
		return false, nil
	}

	return a.clear(bt, 0, pt, side), nil
}

// clear reports whether code[lo:hi] of block b has no interfering instructions.
func (a *Analysis) clear(b ir.Block, lo, hi int, side Side) bool {
	code := a.cfg.Code(b)

	for _, id := range code[lo:hi] {
		if a.interferes(id, side) {
			return false
		}
	}

	return true
}

// pathClear is the query fallback when block states were not computed.
// Every block on some path from bf to bt must be clear,
// except for bf itself which regenerates the check.
func (a *Analysis) pathClear(bf ir.Block, pf int, bt ir.Block, pt int, side Side) bool {
	nb := a.cfg.NumBlocks()

	if !a.clear(bf, pf+1, len(a.cfg.Code(bf)), side) {
		return false
	}

	if !a.clear(bt, 0, pt, side) {
		return false
	}

	fwd := set.MakeBitmap(nb)

	q := append([]ir.Block{}, a.cfg.Succs(bf)...)
	for len(q) != 0 {
		b := q[len(q)-1]
		q = q[:len(q)-1]

		if b == bf || fwd.IsSet(int(b)) {
			continue
		}

		fwd.Set(int(b))

		q = append(q, a.cfg.Succs(b)...)
	}

	if !fwd.IsSet(int(bt)) {
		return false
	}

	bwd := set.MakeBitmap(nb)

	q = append(q[:0], a.cfg.Preds(bt)...)
	for len(q) != 0 {
		b := q[len(q)-1]
		q = q[:len(q)-1]

		if b == bf || bwd.IsSet(int(b)) {
			continue
		}

		bwd.Set(int(b))

		q = append(q, a.cfg.Preds(b)...)
	}

	ok := true

	fwd.Range(func(b int) bool {
		if !bwd.IsSet(b) {
			return true
		}

		ok = a.clear(ir.Block(b), 0, len(a.cfg.Code(ir.Block(b))), side)

		return ok
	})

	return ok
}

func makeState(n int) State {
	return State{
		Reach: set.MakeBitmap(n),
		Dead:  set.MakeBitmap(n),
		Acq:   set.MakeBitmap(n),
		Rel:   set.MakeBitmap(n),
	}
}

func (s *State) active(m int, side Side, race bool) bool {
	if !s.Reach.IsSet(m) || s.Dead.IsSet(m) {
		return false
	}

	if !race {
		return true
	}

	if side == DomSide {
		return !s.Rel.IsSet(m)
	}

	return !s.Acq.IsSet(m)
}

func (s *State) reset() {
	s.Reach.Reset()
	s.Dead.Reset()
	s.Acq.Reset()
	s.Rel.Reset()
}

func (s *State) merge(x *State) {
	s.Reach.Or(x.Reach)
	s.Dead.Or(x.Dead)
	s.Acq.Or(x.Acq)
	s.Rel.Or(x.Rel)
}

func (s *State) assign(x *State) {
	s.Reach.Assign(x.Reach)
	s.Dead.Assign(x.Dead)
	s.Acq.Assign(x.Acq)
	s.Rel.Assign(x.Rel)
}

func (s *State) equal(x *State) bool {
	return s.Reach.Equal(x.Reach) && s.Dead.Equal(x.Dead) && s.Acq.Equal(x.Acq) && s.Rel.Equal(x.Rel)
}

// Active reports whether mop m is reachable and its check is in force.
func (s *State) Active(m mop.ID, side Side, race bool) bool {
	return s.active(int(m), side, race)
}

func (s State) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)
	b = e.AppendString(b, "reach")
	b = s.Reach.TlogAppend(b)
	b = e.AppendString(b, "dead")
	b = s.Dead.TlogAppend(b)
	b = e.AppendString(b, "acq")
	b = s.Acq.TlogAppend(b)
	b = e.AppendString(b, "rel")
	b = s.Rel.TlogAppend(b)

	return b
}

func (w *worklist) push(b ir.Block) {
	if w.queued.IsSet(int(b)) {
		return
	}

	w.queued.Set(int(b))
	w.Heap.Push(b)
}

func (w *worklist) pop() ir.Block {
	b := w.Heap.Pop()
	w.queued.Clear(int(b))

	return b
}
