// Package reduce runs the whole check reduction for one function:
// candidate coverage pairs, interference filtering and the minimal set.
package reduce

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LegendarySHT/MAIR-sub000/compiler/cover"
	"github.com/LegendarySHT/MAIR-sub000/compiler/df"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle/local"
	"github.com/LegendarySHT/MAIR-sub000/compiler/recur"
)

type (
	Options struct {
		WriteSensitive bool

		// SkipInterference trusts every candidate pair
		// without asking the reachability analysis.
		SkipInterference bool

		Race        bool
		IgnoreCalls bool

		// Threshold is passed to df.Options. Zero means df.DefaultThreshold,
		// negative means always run the block analysis.
		Threshold int

		AllowVolatile bool
	}

	Removed struct {
		MOP mop.ID
		By  mop.ID

		Side df.Side
	}

	Result struct {
		Func *ir.Func
		MOPs []mop.MOP

		Keep    []mop.ID
		Removed []Removed

		// Edges are all candidate pairs, blocked ones included.
		Edges []cover.Edge

		Skipped bool // block analysis was not run
		Stats   df.Stats
	}
)

// Reduce returns the mops whose checks must stay.
// o may be nil, then oracles are computed from f itself.
func Reduce(ctx context.Context, f *ir.Func, o *oracle.Set, mops []mop.MOP, opts Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "reduce", "func", f.Name, "mops", len(mops))
	defer tr.Finish("err", &err)

	err = mop.Validate(f, mops)
	if err != nil {
		return nil, errors.Wrap(err, "mops")
	}

	if o == nil {
		o = local.New(f)
	}

	res = &Result{
		Func: f,
		MOPs: mops,
	}

	c := cover.New(o, cover.Options{
		WriteSensitive: opts.WriteSensitive,
		AllowVolatile:  opts.AllowVolatile,
	})

	res.Edges = c.Pairs(ctx, mops)

	if !opts.SkipInterference && len(res.Edges) != 0 {
		err = res.filter(ctx, o, opts)
		if err != nil {
			return nil, errors.Wrap(err, "interference")
		}
	}

	r := recur.Build(mops, res.Edges).Minimal()

	res.Keep = r.Keep

	for _, d := range r.Removed() {
		rm := Removed{MOP: d, By: r.By[d]}

		if e, ok := res.edge(rm.By, d); ok {
			rm.Side = e.Side
		}

		res.Removed = append(res.Removed, rm)
	}

	tr.V("reduce").Printw("reduced", "keep", len(res.Keep), "removed", len(res.Removed), "edges", len(res.Edges))

	return res, nil
}

// DF returns the block analysis options with the threshold defaulted.
func (opts Options) DF() df.Options {
	th := opts.Threshold
	if th == 0 {
		th = df.DefaultThreshold
	}

	return df.Options{
		Race:        opts.Race,
		IgnoreCalls: opts.IgnoreCalls,
		Threshold:   th,
	}
}

func (res *Result) filter(ctx context.Context, o *oracle.Set, opts Options) error {
	tr := tlog.SpanFromContext(ctx)

	a := df.New(ctx, o.CFG, o.Effects, res.MOPs, opts.DF())

	res.Skipped = a.Skipped()
	res.Stats = a.Stats()

	for i := range res.Edges {
		e := &res.Edges[i]

		ok, err := a.Query(e.From, e.To, e.Side)
		if err != nil {
			return errors.Wrap(err, "edge %d -> %d", e.Killing, e.Dead)
		}

		e.Blocked = !ok

		if e.Blocked {
			tr.V("cover").Printw("edge blocked", "edge", *e)
		}
	}

	return nil
}

func (res *Result) edge(k, d mop.ID) (cover.Edge, bool) {
	for _, e := range res.Edges {
		if e.Killing == k && e.Dead == d && !e.Blocked {
			return e, true
		}
	}

	return cover.Edge{}, false
}

// Kept reports whether the check of m survived.
func (res *Result) Kept(m mop.ID) bool {
	for _, k := range res.Keep {
		if k == m {
			return true
		}
	}

	return false
}

// KeptInsts returns instructions whose checks survived.
func (res *Result) KeptInsts() []ir.Inst {
	r := make([]ir.Inst, len(res.Keep))

	for i, k := range res.Keep {
		r[i] = res.MOPs[k].Inst
	}

	return r
}

func (res *Result) AppendText(b []byte) []byte {
	f := res.Func

	b = hfmt.Appendf(b, "func %s: %d mops, %d kept, %d removed\n", f.Name, len(res.MOPs), len(res.Keep), len(res.Removed))

	for _, k := range res.Keep {
		b = res.appendMOP(b, "keep", k)
		b = append(b, '\n')
	}

	for _, rm := range res.Removed {
		b = res.appendMOP(b, "remove", rm.MOP)
		b = hfmt.Appendf(b, "  by %s (%v)\n", f.InstName(res.MOPs[rm.By].Inst), rm.Side)
	}

	return b
}

func (res *Result) appendMOP(b []byte, verb string, id mop.ID) []byte {
	f := res.Func
	m := &res.MOPs[id]

	b = hfmt.Appendf(b, "  %s %d %s %v %s", verb, id, f.InstName(m.Inst), m.Kind, f.BlockName(m.Block))

	if m.Loc.SizeKnown() {
		b = hfmt.Appendf(b, " [%s:%d]", f.Ptrs[m.Loc.Ptr].Name, m.Loc.Size)
	} else {
		b = hfmt.Appendf(b, " [%s:?]", f.Ptrs[m.Loc.Ptr].Name)
	}

	return b
}
